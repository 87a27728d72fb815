package cmd

import (
	"log/slog"

	"github.com/bidhouse/server/bidhouse/database"
	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/spf13/cobra"
)

var resetTables bool

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			slog.Error("Failed to connect to database", slog.String("type", "db"), slog.Any("error", err))
			return err
		}
		defer db.Close()

		if err := db.InitializeSchema(ctx); err != nil {
			slog.Error("Migration failed", slog.String("type", "db"), slog.Any("error", err))
			return err
		}

		if resetTables {
			if err := db.ResetAppTables(ctx); err != nil {
				return err
			}
			logger.LogSystem("Application tables truncated")
		}

		logger.LogSystem("Migration completed successfully")
		return nil
	},
}

func init() {
	migrateCMD.Flags().BoolVar(&resetTables, "reset", false, "truncate all application tables after migrating")
	rootCmd.AddCommand(migrateCMD)
}
