package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/bidhouse/server/backend"
	"github.com/bidhouse/server/backend/handlers"
	"github.com/bidhouse/server/backend/middleware"
	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/spf13/cobra"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API and the settlement scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger.LogSystem("Starting BidHouse",
			slog.String("version", version),
			slog.String("commit", commit),
			slog.String("store", cfg.Engine.Store))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		scheduler := auction.NewScheduler(eng.manager, cfg.Engine.SweepInterval.Duration)
		scheduler.Start()
		defer scheduler.Stop()

		limiter := middleware.NewRateLimiter(cfg.Web.RateLimit, cfg.Web.RateWindow.Duration)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					limiter.Cleanup()
				}
			}
		}()

		app := backend.NewApp(&handlers.WebApp{
			Manager: eng.manager,
			Version: version,
			Commit:  commit,
		}, cfg.Web, limiter)

		address := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		listenErr := make(chan error, 1)
		go func() {
			slog.Info("Starting HTTP server", slog.String("type", "api"), slog.String("address", address))
			listenErr <- app.Listen(address)
		}()

		select {
		case err := <-listenErr:
			return fmt.Errorf("server stopped: %w", err)
		case <-ctx.Done():
		}

		slog.Info("Shutting down...", slog.String("type", "sys"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", slog.String("type", "api"), slog.Any("error", err))
		}

		logger.LogSystem("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCMD)
}
