package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bidhouse/server/bidhouse"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	schemaVersion        = 2 // bump when schema/indexes change
)

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg bidhouse.DBConfig) (*DB, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		var conn net.Conn
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			conn.Close()
			break
		}
		slog.Warn("Database not reachable, retrying",
			slog.String("type", "db"),
			slog.String("addr", addr),
			slog.Int("attempt", i+1))
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reach database after %d attempts: %w", defaultMaxRetries, err)
	}

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	return createDB(ctx, poolConfig, bunDSN(cfg))
}

// NewFromDSN connects with a ready-made postgres:// URL. Integration tests use it.
func NewFromDSN(ctx context.Context, dsn string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	return createDB(ctx, poolConfig, dsn)
}

func buildConnString(cfg bidhouse.DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func bunDSN(cfg bidhouse.DBConfig) string {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)
}

func createDB(ctx context.Context, poolConfig *pgxpool.Config, dsn string) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if poolConfig.MaxConns > 0 {
		sqldb.SetMaxOpenConns(int(poolConfig.MaxConns))
	}
	return &DB{pool: pool, bunDB: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	result, err := db.pool.Exec(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", "exec"),
			slog.String("query", sql),
			slog.Any("args", args),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return result, err
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", "exec"),
		slog.String("query", sql),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", result.RowsAffected()),
	)
	return result, nil
}

func (db *DB) QueryWithLog(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	start := time.Now()
	rows, err := db.pool.Query(ctx, sql, args...)
	logger.LogQuery(sql, time.Since(start), err)
	return rows, err
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}

// Ping verifies both database connections are working
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgxpool ping failed: %w", err)
	}
	if err := db.bunDB.PingContext(ctx); err != nil {
		return fmt.Errorf("bun ping failed: %w", err)
	}
	return nil
}

// InitializeSchema creates all required database tables, constraints and indexes
func (db *DB) InitializeSchema(ctx context.Context) error {
	if err := db.ensureAppMeta(ctx); err != nil {
		return fmt.Errorf("failed to create app_meta: %w", err)
	}
	if os.Getenv("DB_FAST_INIT") == "1" {
		if v, _ := db.getAppMeta(ctx, "schema_version"); v == strconv.Itoa(schemaVersion) {
			slog.Info("Fast DB init: schema up-to-date, skipping initialization",
				slog.String("type", "db"),
				slog.Int("schema_version", schemaVersion))
			return nil
		}
	}

	tables := []interface{}{
		(*models.Account)(nil),
		(*models.Listing)(nil),
		(*models.Bid)(nil),
		(*models.AutoBid)(nil),
		(*models.Order)(nil),
		(*models.Activity)(nil),
		(*models.Message)(nil),
	}

	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecWithLog(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	if err := db.setAppMeta(ctx, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	slog.Info("Database schema initialized",
		slog.String("type", "db"),
		slog.Int("schema_version", schemaVersion))
	return nil
}

var schemaStatements = []string{
	"ALTER TABLE accounts ADD COLUMN IF NOT EXISTS total_bid_amount numeric(14,2) NOT NULL DEFAULT 0;",
	addConstraint("accounts", "accounts_balance_non_negative", "CHECK (balance >= 0 AND frozen_balance >= 0)"),
	addConstraint("listings", "listings_price_non_negative", "CHECK (current_price >= 0 AND min_increment >= 0)"),
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_active ON bids(listing_id) WHERE status = 'active';",
	"CREATE INDEX IF NOT EXISTS idx_bids_listing_created ON bids(listing_id, created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder_id);",
	"CREATE INDEX IF NOT EXISTS idx_listings_active_end ON listings(end_time) WHERE status = 'active' AND kind = 'auction';",
	"CREATE INDEX IF NOT EXISTS idx_auto_bids_listing_active ON auto_bids(listing_id, max_amount DESC, created_at ASC) WHERE is_active;",
	"CREATE INDEX IF NOT EXISTS idx_orders_listing ON orders(listing_id);",
	"CREATE INDEX IF NOT EXISTS idx_activity_log_created ON activity_log(created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, created_at DESC);",
}

func addConstraint(table, name, check string) string {
	return fmt.Sprintf(`DO $$ BEGIN
	ALTER TABLE %s ADD CONSTRAINT %s %s;
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;`, table, name, check)
}

// ResetAppTables truncates application tables for a fresh start
func (db *DB) ResetAppTables(ctx context.Context) error {
	tables := []string{"messages", "activity_log", "orders", "auto_bids", "bids", "listings", "accounts"}
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = fmt.Sprintf("%q", t)
	}

	stmt := "TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE;"
	if _, err := db.ExecWithLog(ctx, stmt); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

func (db *DB) ensureAppMeta(ctx context.Context) error {
	_, err := db.ExecWithLog(ctx, `CREATE TABLE IF NOT EXISTS app_meta (key TEXT PRIMARY KEY, value TEXT)`)
	return err
}

func (db *DB) getAppMeta(ctx context.Context, key string) (string, error) {
	row := db.pool.QueryRow(ctx, `SELECT value FROM app_meta WHERE key = $1`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

func (db *DB) setAppMeta(ctx context.Context, key, value string) error {
	sql := `INSERT INTO app_meta(key, value) VALUES($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	_, err := db.ExecWithLog(ctx, sql, key, value)
	return err
}
