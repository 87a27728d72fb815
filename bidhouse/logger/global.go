package logger

import (
	"log/slog"
	"os"
	"time"
)

// Setup installs the custom handler as the process-wide default logger.
func Setup(prefix string, level slog.Level) {
	slog.SetDefault(slog.New(NewHandlerWithOptions(prefix, os.Stdout, level)))
}

// LogQuery logs database operations
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Debug("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}

// LogBid logs an accepted bid, manual or proxy
func LogBid(msg string, listingID, bidderID int64, amount string, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "bid"),
		slog.Int64("listing_id", listingID),
		slog.Int64("bidder_id", bidderID),
		slog.String("amount", amount),
	}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogSystem logs system events
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
