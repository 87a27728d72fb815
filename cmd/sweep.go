package cmd

import (
	"fmt"

	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/spf13/cobra"
)

var sweepCMD = &cobra.Command{
	Use:   "sweep",
	Short: "settle every expired auction once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		report, err := eng.manager.SweepExpiredAuctions(ctx)
		logger.LogSystem("Sweep finished",
			"ended", report.Ended,
			"sold", report.Sold,
			"failed", report.Failed)
		if err != nil {
			return fmt.Errorf("sweep finished with failures: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCMD)
}
