package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidhouse/server/bidhouse"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

// Config holds the engine's tunables.
type Config struct {
	FeeRate          decimal.Decimal
	SoftCloseWindow  time.Duration
	MaxCascadeSteps  int
	SweepBatchSize   int
	SweepConcurrency int
	StatusCacheSize  int
	StatusCacheTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FeeRate:          decimal.RequireFromString(bidhouse.DefaultFeeRate),
		SoftCloseWindow:  bidhouse.DefaultSoftCloseWindow,
		MaxCascadeSteps:  bidhouse.DefaultMaxCascadeSteps,
		SweepBatchSize:   bidhouse.DefaultSweepBatchSize,
		SweepConcurrency: bidhouse.DefaultSweepConcurrency,
		StatusCacheSize:  bidhouse.DefaultStatusCacheSize,
		StatusCacheTTL:   bidhouse.DefaultStatusCacheTTL,
	}
}

// ConfigFromEngine maps the [engine] section of the config file.
func ConfigFromEngine(e bidhouse.EngineConfig) Config {
	return Config{
		FeeRate:          e.Fee(),
		SoftCloseWindow:  e.SoftCloseWindow.Duration,
		MaxCascadeSteps:  e.MaxCascadeSteps,
		SweepBatchSize:   e.SweepBatchSize,
		SweepConcurrency: e.SweepConcurrency,
		StatusCacheSize:  e.StatusCacheSize,
		StatusCacheTTL:   e.StatusCacheTTL.Duration,
	}
}

// Manager is the bid settlement engine. All state lives in the Store; the
// Manager itself holds no locks, so several processes may share one database.
type Manager struct {
	store      Store
	cfg        Config
	notifier   Notifier
	sinks      []ActivitySink
	activities ActivityReader
	cache      *statusCache
	now        func() time.Time
}

type Option func(*Manager)

func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithClock replaces time.Now. Tests use it to pin the auction clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithActivitySinks(sinks ...ActivitySink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

func WithActivityReader(r ActivityReader) Option {
	return func(m *Manager) { m.activities = r }
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		cfg:   DefaultConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxCascadeSteps <= 0 {
		m.cfg.MaxCascadeSteps = bidhouse.DefaultMaxCascadeSteps
	}
	if m.cfg.SweepBatchSize <= 0 {
		m.cfg.SweepBatchSize = bidhouse.DefaultSweepBatchSize
	}
	if m.cfg.SweepConcurrency <= 0 {
		m.cfg.SweepConcurrency = bidhouse.DefaultSweepConcurrency
	}
	m.cache = newStatusCache(m.cfg.StatusCacheSize, m.cfg.StatusCacheTTL, m.now)
	return m
}

func (m *Manager) Store() Store {
	return m.store
}

// notify delivers a message; failures are logged and never reach the caller.
func (m *Manager) notify(ctx context.Context, n Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		slog.Warn("Failed to send notification",
			slog.String("type", "sys"),
			slog.Int64("listing_id", n.ListingID),
			slog.Int64("receiver_id", n.To),
			slog.Any("error", err))
	}
}

// record appends an audit row to every sink; failures are logged and swallowed.
func (m *Manager) record(ctx context.Context, kind models.ActivityKind, userID, listingID int64, amount *decimal.Decimal, format string, args ...any) {
	activity := models.Activity{
		Kind:      kind,
		UserID:    userID,
		Message:   fmt.Sprintf(format, args...),
		Amount:    amount,
		CreatedAt: m.now(),
	}
	if listingID > 0 {
		activity.ListingID = &listingID
	}
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, activity); err != nil {
			slog.Warn("Failed to record activity",
				slog.String("type", "sys"),
				slog.String("kind", string(kind)),
				slog.Int64("listing_id", listingID),
				slog.Any("error", err))
		}
	}
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func validMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2))
}
