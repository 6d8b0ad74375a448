package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
)

var (
	cfgFile string
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:           "eventreg",
	Short:         "Event registration service with capacity limits and a FIFO waitlist",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded into the environment before reading config")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func initConfig() error {
	loaded, err := config.Load(viper.GetViper(), cfgFile, envFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := log.Init(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Info(log.CatConfig, "config loaded", "file", used)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
