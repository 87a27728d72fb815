package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCustomHandler_Handle(t *testing.T) {
	tests := []struct {
		name     string
		level    slog.Level
		log      func(l *slog.Logger)
		want     []string
		wantNone bool
	}{
		{
			name:  "db type",
			level: slog.LevelDebug,
			log: func(l *slog.Logger) {
				l.Info("Query executed", slog.String("type", "db"), slog.Int64("affected_rows", 1))
			},
			want: []string{"[Test]", "[INFO]", "[DB]", "Query executed", "affected_rows=1"},
		},
		{
			name:  "bid type from With",
			level: slog.LevelDebug,
			log: func(l *slog.Logger) {
				l.With(slog.String("type", "bid")).Info("Bid placed", slog.Int64("listing_id", 7))
			},
			want: []string{"[BID]", "Bid placed", "listing_id=7"},
		},
		{
			name:  "error carries details",
			level: slog.LevelDebug,
			log: func(l *slog.Logger) {
				l.Error("Settlement failed", slog.Any("error", errors.New("boom")))
			},
			want: []string{"[ERROR]", "[ERR]", "Settlement failed", ": boom"},
		},
		{
			name:  "status attr rendered inline",
			level: slog.LevelDebug,
			log: func(l *slog.Logger) {
				l.Warn("Request handled", slog.String("type", "api"), slog.Int("status", 422))
			},
			want: []string{"[WARN]", "[API]", "[Status: 422]"},
		},
		{
			name:  "below level",
			level: slog.LevelWarn,
			log: func(l *slog.Logger) {
				l.Info("quiet")
			},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := slog.New(NewHandlerWithOptions("Test", &buf, tt.level))
			tt.log(l)

			got := buf.String()
			if tt.wantNone {
				if got != "" {
					t.Errorf("Handle() wrote %q, want nothing", got)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Handle() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func Test_parseLogType(t *testing.T) {
	tests := []struct {
		value string
		level slog.Level
		want  LogType
	}{
		{"api", slog.LevelInfo, TypeAPI},
		{"db", slog.LevelInfo, TypeDB},
		{"bid", slog.LevelInfo, TypeBid},
		{"", slog.LevelInfo, TypeSystem},
		{"", slog.LevelError, TypeError},
		{"unknown", slog.LevelWarn, TypeSystem},
	}
	for _, tt := range tests {
		if got := parseLogType(tt.value, tt.level); got != tt.want {
			t.Errorf("parseLogType(%q, %v) = %v, want %v", tt.value, tt.level, got, tt.want)
		}
	}
}
