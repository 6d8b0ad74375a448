package main

import (
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(database.Up), string(database.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return database.Migrate(cfg.Database.MigrateURL(), database.Direction(args[0]))
	},
}
