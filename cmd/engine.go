package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bidhouse/server/bidhouse"
	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database"
	"github.com/bidhouse/server/bidhouse/database/memstore"
	"github.com/bidhouse/server/bidhouse/database/repositories"
	"github.com/bidhouse/server/bidhouse/events"
)

// engine holds the manager and whatever it needs closed on shutdown.
type engine struct {
	manager *auction.Manager
	closers []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("Shutdown step failed", slog.String("type", "sys"), slog.Any("error", err))
		}
	}
}

// newEngine wires the store selected by engine.store with its sinks.
func newEngine(ctx context.Context, cfg *bidhouse.Config) (*engine, error) {
	eng := &engine{}
	opts := []auction.Option{auction.WithConfig(auction.ConfigFromEngine(cfg.Engine))}

	var store auction.Store
	switch cfg.Engine.Store {
	case "memory":
		mem := memstore.New()
		store = mem
		opts = append(opts,
			auction.WithNotifier(mem),
			auction.WithActivitySinks(mem),
			auction.WithActivityReader(mem))
	case "postgres":
		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		eng.closers = append(eng.closers, func() error { db.Close(); return nil })
		if err := db.InitializeSchema(ctx); err != nil {
			eng.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}

		store = repositories.NewStore(db, cfg.Engine.TransactionTimeout.Duration)
		activities := repositories.NewActivityRepository(db.BunDB())
		opts = append(opts,
			auction.WithNotifier(repositories.NewMessageRepository(db.BunDB())),
			auction.WithActivitySinks(activities),
			auction.WithActivityReader(activities))
	default:
		return nil, fmt.Errorf("unknown engine store %q", cfg.Engine.Store)
	}

	if cfg.Kafka.Enabled {
		broadcaster, err := events.New(cfg.Kafka)
		if err != nil {
			eng.Close()
			return nil, err
		}
		eng.closers = append(eng.closers, broadcaster.Close)
		opts = append(opts, auction.WithActivitySinks(broadcaster))
		slog.Info("Publishing activity to Kafka",
			slog.String("type", "sys"),
			slog.String("topic", cfg.Kafka.Topic),
			slog.Any("brokers", cfg.Kafka.Brokers))
	}

	eng.manager = auction.NewManager(store, opts...)
	return eng, nil
}
