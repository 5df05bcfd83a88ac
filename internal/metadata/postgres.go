package metadata

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool         *pgxpool.Pool
	cfg          CatalogConfig
	mu           sync.RWMutex
	datasetCache map[string]int64 // cache dataset IDs
	log          *slog.Logger
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool:         pool,
		cfg:          cfg,
		datasetCache: make(map[string]int64),
		log:          slog.With("component", "metadata"),
	}

	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

// initSchema creates the _goes_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// EnsureDataset registers or retrieves the dataset row for a product.
func (w *PostgresWriter) EnsureDataset(ctx context.Context, satellite, product string) (int64, error) {
	cacheKey := fmt.Sprintf("%s.%s.%s", w.cfg.Namespace, satellite, product)
	w.mu.RLock()
	if id, ok := w.datasetCache[cacheKey]; ok {
		w.mu.RUnlock()
		return id, nil
	}
	w.mu.RUnlock()

	query := `
		INSERT INTO _goes_datasets (namespace, satellite, product)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, satellite, product)
		DO UPDATE SET updated_at = NOW()
		RETURNING id
	`

	var id int64
	if err := w.pool.QueryRow(ctx, query, w.cfg.Namespace, satellite, product).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure dataset: %w", err)
	}

	w.mu.Lock()
	w.datasetCache[cacheKey] = id
	w.mu.Unlock()

	return id, nil
}

// RecordProcessed writes a lineage row for one processed file.
func (w *PostgresWriter) RecordProcessed(ctx context.Context, rec Record) error {
	datasetID, err := w.EnsureDataset(ctx, rec.Satellite, rec.Product)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO _goes_lineage (
			dataset_id, remote_key, observed_at, processed_path, transform,
			byte_size, correlation_id, producer_version, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dataset_id, remote_key)
		DO UPDATE SET
			processed_path = EXCLUDED.processed_path,
			transform = EXCLUDED.transform,
			byte_size = EXCLUDED.byte_size,
			correlation_id = EXCLUDED.correlation_id,
			processed_at = EXCLUDED.processed_at
	`

	_, err = w.pool.Exec(ctx, query,
		datasetID,
		rec.RemoteKey,
		rec.ObservedAt,
		rec.ProcessedPath,
		rec.Transform,
		rec.ByteSize,
		rec.CorrelationID,
		rec.ProducerVersion,
		rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("record processed: %w", err)
	}

	w.log.Debug("recorded lineage", "remote_key", rec.RemoteKey)
	return nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
