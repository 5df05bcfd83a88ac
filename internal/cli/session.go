package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/goes-fetcher/internal/fetcher"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
	"github.com/withObsrvr/goes-fetcher/internal/metadata"
	"github.com/withObsrvr/goes-fetcher/internal/metrics"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// sessionOptions tunes openFetcher.
type sessionOptions struct {
	// planPath, when set, replaces the computed workplan with a saved one.
	planPath string
	// windowless skips the start/end requirement.
	windowless bool
}

// openFetcher validates the configuration and opens a session.
func (a *app) openFetcher(ctx context.Context, so sessionOptions) (*fetcher.Fetcher, error) {
	cfg := a.cfg
	validate := cfg.Validate
	if so.windowless {
		validate = cfg.ValidateSettings
	}
	if err := validate(); err != nil {
		return nil, err
	}
	q, err := cfg.SessionQuery()
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Get()
		if m == nil {
			m = metrics.Init("")
			go func() {
				if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
					slog.Error("metrics server stopped", "address", cfg.Metrics.Address, "error", err)
				}
			}()
		}
	}

	lineage, err := metadata.NewWriter(metadata.CatalogConfig{
		PostgresDSN: cfg.Catalog.PostgresDSN,
		Namespace:   cfg.Catalog.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("open lineage catalog: %w", err)
	}

	transformName := ""
	if cfg.Processing.Enabled {
		transformName = cfg.Processing.Transform
	}

	f, err := fetcher.New(ctx, q, fetcher.Options{
		SourceConfig:  cfg.Source,
		SampleSize:    cfg.Execution.SampleSize,
		Isolation:     fetcher.Isolation(cfg.Execution.Isolation),
		Metrics:       m,
		Lineage:       lineage,
		TransformName: transformName,
		CorrelationID: logging.GenerateCorrelationID(),
	})
	if err != nil {
		lineage.Close()
		return nil, err
	}

	if so.planPath != "" {
		plan, err := workplan.Load(so.planPath)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.Replace(plan)
	}
	return f, nil
}

// openCatalog opens a catalog adapter without a query session.
func (a *app) openCatalog(ctx context.Context) (source.Catalog, error) {
	return source.New(ctx, a.cfg.Source)
}
