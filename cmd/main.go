// cmd is the application entry point. The root command loads configuration;
// serve wires together all layers and starts the HTTP server.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
