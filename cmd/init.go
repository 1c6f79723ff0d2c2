package cmd

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/EnzoPontoniDev/Alvl-Bot/alvlbot"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and data directory",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.DatabaseType == "" {
			log.Fatal("database type not set (must be one of: sqlite, postgres)")
		}
		if cfg.Database == "" {
			log.Fatal(
				"database not set (must be a valid database connection " +
					"string or sqlite file path)",
			)
		}

		if _, err := alvlbot.CreateDB(
			ctx,
			cfg.DatabaseType,
			cfg.Database,
			nil,
		); err != nil {
			log.Fatalf("Error creating database: %v", err)
		}

		if _, err := alvlbot.NewRecordStore(
			cfg.DataDir,
			slog.Default(),
		); err != nil {
			log.Fatalf("Error creating data directory: %v", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
