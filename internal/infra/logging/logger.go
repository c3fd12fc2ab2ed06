// Package logging builds the slog loggers handed to services.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Channel tags log lines with the component that wrote them
type Channel string

const (
	ChannelSystem    Channel = "system"
	ChannelHTTP      Channel = "http"
	ChannelLifecycle Channel = "lifecycle"
	ChannelPoller    Channel = "poller"
	ChannelIndex     Channel = "index"
	ChannelWatch     Channel = "watch"
	ChannelEvents    Channel = "events"
)

// ParseLevel maps a config level name to slog; unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text or JSON logger writing to w at the given level.
func New(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// For returns logger scoped to a channel.
func For(logger *slog.Logger, ch Channel) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("channel", string(ch))
}

// Discard is a logger that drops everything; used in tests and quiet CLI runs.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
