package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeAPI    LogType = "API"
	TypeDB     LogType = "DB"
	TypeBid    LogType = "BID"
	TypeSystem LogType = "SYS"
	TypeError  LogType = "ERR"
)

type CustomHandler struct {
	opts      *slog.HandlerOptions
	prefix    string
	out       io.Writer
	mu        *sync.Mutex
	startTime time.Time
	attrs     []slog.Attr
	groups    []string
}

// NewHandler writes to stdout at debug level.
func NewHandler(prefix string) *CustomHandler {
	return NewHandlerWithOptions(prefix, os.Stdout, slog.LevelDebug)
}

func NewHandlerWithOptions(prefix string, out io.Writer, level slog.Leveler) *CustomHandler {
	if prefix == "" {
		prefix = "BidHouse"
	}
	return &CustomHandler{
		opts:      &slog.HandlerOptions{Level: level},
		prefix:    prefix,
		out:       out,
		mu:        &sync.Mutex{},
		startTime: time.Now(),
		attrs:     make([]slog.Attr, 0),
		groups:    make([]string, 0),
	}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CustomHandler{
		opts:      h.opts,
		prefix:    h.prefix,
		out:       h.out,
		mu:        h.mu,
		startTime: h.startTime,
		attrs:     merged,
		groups:    h.groups,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	return &CustomHandler{
		opts:      h.opts,
		prefix:    h.prefix,
		out:       h.out,
		mu:        h.mu,
		startTime: h.startTime,
		attrs:     h.attrs,
		groups:    append(append([]string{}, h.groups...), name),
	}
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	if shouldSkipLog(&r) {
		return nil
	}

	timestamp := r.Time.Format("15:04:05")
	if r.Time.IsZero() {
		timestamp = time.Now().Format("15:04:05")
	}

	var levelColor, levelText string
	switch {
	case r.Level >= slog.LevelError:
		levelColor = colorRed
		levelText = "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor = colorYellow
		levelText = "WARN"
	case r.Level >= slog.LevelInfo:
		levelColor = colorGreen
		levelText = "INFO"
	default:
		levelColor = colorPurple
		levelText = "DEBUG"
	}

	logType := h.getLogType(&r)
	status := getAttr(&r, "status")

	message := r.Message
	if r.Level >= slog.LevelError {
		if location := getErrorLocation(&r); location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
		if details := getAttr(&r, "error"); details != "" {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	}

	if status != "" {
		message = fmt.Sprintf("%s [Status: %s]", message, status)
	}

	var attrsStr strings.Builder
	writeAttr := func(a slog.Attr) {
		if isInternalAttr(a.Key) {
			return
		}
		if a.Key == "error" && r.Level >= slog.LevelError {
			return
		}
		key := a.Key
		if len(h.groups) > 0 {
			key = strings.Join(h.groups, ".") + "." + key
		}
		fmt.Fprintf(&attrsStr, " %s=%v", key, a.Value)
	}
	for _, attr := range h.attrs {
		writeAttr(attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.out, "%s[%s] [%s] [%s%s%s] [%s] %s%s%s\n",
		colorWhite,
		h.prefix,
		timestamp,
		levelColor,
		levelText,
		colorWhite,
		logType,
		message,
		attrsStr.String(),
		colorReset,
	)
	return err
}

func shouldSkipLog(r *slog.Record) bool {
	// fasthttp and pgdriver chatter that carries no engine information
	skippedMessages := []string{
		"connection pool acquired",
		"keepalive",
	}

	for _, skip := range skippedMessages {
		if strings.Contains(strings.ToLower(r.Message), skip) {
			return true
		}
	}

	return false
}

func (h *CustomHandler) getLogType(r *slog.Record) LogType {
	value := getAttr(r, "type")
	if value == "" {
		for _, a := range h.attrs {
			if a.Key == "type" {
				value = a.Value.String()
			}
		}
	}
	return parseLogType(value, r.Level)
}

func parseLogType(value string, level slog.Level) LogType {
	switch value {
	case "api":
		return TypeAPI
	case "db":
		return TypeDB
	case "bid":
		return TypeBid
	case "error":
		return TypeError
	case "sys":
		return TypeSystem
	}
	if level >= slog.LevelError {
		return TypeError
	}
	return TypeSystem
}

func getSourceLocation(pc uintptr) (string, int) {
	if pc == 0 {
		return "", 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return "", 0
	}
	return filepath.Base(frame.File), frame.Line
}

func isInternalAttr(key string) bool {
	switch key {
	case "type", "status", "error_location":
		return true
	}
	return false
}

func getAttr(r *slog.Record, key string) string {
	var value string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			value = a.Value.String()
			return false
		}
		return true
	})
	return value
}

func getErrorLocation(r *slog.Record) string {
	location := getAttr(r, "error_location")
	if location == "" && r.Level >= slog.LevelError {
		if file, line := getSourceLocation(r.PC); file != "" {
			location = fmt.Sprintf("%s:%d", file, line)
		}
	}
	return location
}
