package metadata

import (
	"context"
)

type CatalogConfig struct {
	PostgresDSN string
	Namespace   string
}

// Writer persists lineage records.
type Writer interface {
	RecordProcessed(ctx context.Context, rec Record) error
	Close() error
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a no-op
// writer otherwise.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(cfg)
}

type noopWriter struct{}

func (noopWriter) RecordProcessed(_ context.Context, _ Record) error { return nil }
func (noopWriter) Close() error                                      { return nil }
