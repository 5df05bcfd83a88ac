// Package logging configures slog for the fetcher and its worker processes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Config holds logging configuration.
type Config struct {
	Format string    // "json" | "text"
	Level  string    // "debug" | "info" | "warn" | "error"
	Output io.Writer // defaults to stdout
}

// NewHandler builds the handler described by cfg.
func NewHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// Setup installs the handler described by cfg as the slog default.
func Setup(cfg Config) {
	slog.SetDefault(slog.New(NewHandler(cfg)))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type correlationIDKey struct{}

// WithCorrelationID attaches a run correlation ID to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the run correlation ID carried by ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GenerateCorrelationID returns a new random run ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}

// RunLogger tags log lines with the query of one fetcher session.
func RunLogger(correlationID, satellite, product, sector string) *slog.Logger {
	return Component("fetcher").With(
		"correlation_id", correlationID,
		"satellite", satellite,
		"product", product,
		"sector", sector,
	)
}

// WorkerLogger tags log lines of one worker job. The correlation ID of the
// parent run is added when ctx carries one.
func WorkerLogger(ctx context.Context, remoteKey string) *slog.Logger {
	log := Component("worker").With("remote_key", remoteKey)
	if id := CorrelationID(ctx); id != "" {
		log = log.With("correlation_id", id)
	}
	return log
}
