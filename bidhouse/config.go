package bidhouse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset engine and web setting.
func (c *Config) ApplyDefaults() {
	c.Engine.applyDefaults()
	c.Web.applyDefaults()
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	DB     DBConfig     `toml:"db"`
	Web    WebConfig    `toml:"web"`
	Engine EngineConfig `toml:"engine"`
	Kafka  KafkaConfig  `toml:"kafka"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type WebConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowOrigins   string   `toml:"allow_origins"`
	RateLimit      int      `toml:"rate_limit"` // requests per window per IP
	RateWindow     Duration `toml:"rate_window"`
	SweepThrottle  Duration `toml:"sweep_throttle"` // opportunistic sweep spacing
	SweepOnRequest bool     `toml:"sweep_on_request"`
}

// EngineConfig tunes the bidding engine. Store selects "postgres" or "memory".
type EngineConfig struct {
	Store              string   `toml:"store"`
	FeeRate            string   `toml:"fee_rate"`
	SoftCloseWindow    Duration `toml:"soft_close_window"`
	SweepInterval      Duration `toml:"sweep_interval"`
	SweepBatchSize     int      `toml:"sweep_batch_size"`
	SweepConcurrency   int      `toml:"sweep_concurrency"`
	MaxCascadeSteps    int      `toml:"max_cascade_steps"`
	StatusCacheSize    int      `toml:"status_cache_size"`
	StatusCacheTTL     Duration `toml:"status_cache_ttl"`
	TransactionTimeout Duration `toml:"transaction_timeout"`
}

type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	ClientID string   `toml:"client_id"`
}

// Duration lets TOML files carry values such as "60s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Fee parses FeeRate, falling back to the default platform fee.
func (e EngineConfig) Fee() decimal.Decimal {
	rate, err := decimal.NewFromString(e.FeeRate)
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.RequireFromString(DefaultFeeRate)
	}
	return rate
}

const (
	DefaultFeeRate          = "0.05"
	DefaultSoftCloseWindow  = 60 * time.Second
	DefaultSweepInterval    = 15 * time.Second
	DefaultSweepBatchSize   = 100
	DefaultSweepConcurrency = 4
	DefaultMaxCascadeSteps  = 1000
	DefaultStatusCacheSize  = 1024
	DefaultStatusCacheTTL   = 2 * time.Second
	DefaultTxTimeout        = 30 * time.Second
)

func (e *EngineConfig) applyDefaults() {
	if e.Store == "" {
		e.Store = "postgres"
	}
	if e.FeeRate == "" {
		e.FeeRate = DefaultFeeRate
	}
	if e.SoftCloseWindow.Duration <= 0 {
		e.SoftCloseWindow.Duration = DefaultSoftCloseWindow
	}
	if e.SweepInterval.Duration <= 0 {
		e.SweepInterval.Duration = DefaultSweepInterval
	}
	if e.SweepBatchSize <= 0 {
		e.SweepBatchSize = DefaultSweepBatchSize
	}
	if e.SweepConcurrency <= 0 {
		e.SweepConcurrency = DefaultSweepConcurrency
	}
	if e.MaxCascadeSteps <= 0 {
		e.MaxCascadeSteps = DefaultMaxCascadeSteps
	}
	if e.StatusCacheSize <= 0 {
		e.StatusCacheSize = DefaultStatusCacheSize
	}
	if e.StatusCacheTTL.Duration <= 0 {
		e.StatusCacheTTL.Duration = DefaultStatusCacheTTL
	}
	if e.TransactionTimeout.Duration <= 0 {
		e.TransactionTimeout.Duration = DefaultTxTimeout
	}
}

func (w *WebConfig) applyDefaults() {
	if w.Host == "" {
		w.Host = "0.0.0.0"
	}
	if w.Port == 0 {
		w.Port = 8080
	}
	if w.RateLimit <= 0 {
		w.RateLimit = 100
	}
	if w.RateWindow.Duration <= 0 {
		w.RateWindow.Duration = time.Minute
	}
	if w.SweepThrottle.Duration <= 0 {
		w.SweepThrottle.Duration = 5 * time.Second
	}
}
