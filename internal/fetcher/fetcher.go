// Package fetcher ties a query to its workplan and runs the download and
// process executors over it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/withObsrvr/goes-fetcher/internal/logging"
	"github.com/withObsrvr/goes-fetcher/internal/metadata"
	"github.com/withObsrvr/goes-fetcher/internal/metrics"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// DefaultSampleSize is the number of objects sized by the disk estimator.
const DefaultSampleSize = 10

// Isolation selects how ProcessParallel isolates workers.
type Isolation string

const (
	// IsolationProcess runs every entry in its own OS process.
	IsolationProcess Isolation = "process"
	// IsolationScoped runs every entry in a goroutine with its own adapter.
	IsolationScoped Isolation = "scoped"
)

// Options configures a Fetcher. Zero values select defaults.
type Options struct {
	// Catalog serves the sequential paths. When nil the Fetcher opens its
	// own from Factory, replacing the instance each time it exhausts
	// SourceConfig.MaxOps, and closes it in Close.
	Catalog source.Catalog

	// Factory defaults to source.NewFactory(SourceConfig).
	Factory source.Factory

	// SourceConfig is handed to parallel workers so each can create its own
	// adapter.
	SourceConfig source.Config

	FS         storage.FS
	SampleSize int
	Isolation  Isolation

	// WorkerCommand starts a worker process that reads one job on stdin.
	// Defaults to the running executable with the "worker" sub-command.
	WorkerCommand []string
	WorkerEnv     []string

	Metrics *metrics.Metrics
	Lineage metadata.Writer

	// TransformName labels lineage records written by Process.
	TransformName string
	CorrelationID string
}

type cacheState int

const (
	unbuilt cacheState = iota
	built
)

// Fetcher is one query session. It is not safe for concurrent use.
type Fetcher struct {
	query       query.Query
	opts        Options
	catalog     source.Catalog
	ownsCatalog bool
	fs          storage.FS
	labels      metrics.Labels
	log         *slog.Logger

	state cacheState
	plan  *workplan.Plan
}

// New validates q and prepares a session.
func New(ctx context.Context, q query.Query, opts Options) (*Fetcher, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	switch opts.Isolation {
	case "":
		opts.Isolation = IsolationProcess
	case IsolationProcess, IsolationScoped:
	default:
		return nil, &query.ConfigurationError{Field: "isolation", Reason: fmt.Sprintf("unknown mode %q", opts.Isolation)}
	}
	if opts.Lineage == nil {
		opts.Lineage, _ = metadata.NewWriter(metadata.CatalogConfig{})
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = logging.GenerateCorrelationID()
	}

	f := &Fetcher{
		query:   q,
		opts:    opts,
		catalog: opts.Catalog,
		fs:      opts.FS,
		labels:  metrics.Labels{Satellite: q.Satellite, Product: q.Product + q.Sector},
		log:     logging.RunLogger(opts.CorrelationID, q.Satellite, q.Product, q.Sector),
	}
	if f.fs == nil {
		f.fs = storage.NewLocalFS()
	}
	if f.catalog == nil {
		factory := opts.Factory
		if factory == nil {
			factory = source.NewFactory(opts.SourceConfig)
		}
		cat, err := source.NewRotating(ctx, factory)
		if err != nil {
			return nil, fmt.Errorf("create source: %w", err)
		}
		f.catalog = cat
		f.ownsCatalog = true
	}

	return f, nil
}

// Query returns the session query.
func (f *Fetcher) Query() query.Query {
	return f.query
}

// SetQuery replaces the query and drops any cached workplan.
func (f *Fetcher) SetQuery(q query.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	f.query = q
	f.labels = metrics.Labels{Satellite: q.Satellite, Product: q.Product + q.Sector}
	f.Invalidate()
	return nil
}

// Workplan returns the cached workplan, building it on first use.
func (f *Fetcher) Workplan(ctx context.Context) (*workplan.Plan, error) {
	if f.state == built {
		return f.plan, nil
	}

	cat := &observedCatalog{Catalog: f.catalog, metrics: f.opts.Metrics, labels: f.labels}
	plan, err := workplan.Build(ctx, f.query.Request(), cat, f.fs)
	if err != nil {
		return nil, err
	}

	f.log.Info("workplan ready",
		"entries", plan.Len(),
		"start", f.query.Start,
		"end", f.query.End,
	)
	f.opts.Metrics.SetWorkplanEntries(f.labels, plan.Len())

	f.plan = plan
	f.state = built
	return plan, nil
}

// Invalidate drops the cached workplan; the next access rebuilds it.
func (f *Fetcher) Invalidate() {
	f.plan = nil
	f.state = unbuilt
}

// Replace installs a precomputed workplan.
func (f *Fetcher) Replace(plan *workplan.Plan) {
	if plan == nil {
		plan = &workplan.Plan{}
	}
	f.plan = plan
	f.state = built
	f.opts.Metrics.SetWorkplanEntries(f.labels, plan.Len())
}

// Close releases the catalog when the Fetcher created it, and the lineage
// writer.
func (f *Fetcher) Close() error {
	var errs []error
	if f.ownsCatalog {
		errs = append(errs, f.catalog.Close())
	}
	errs = append(errs, f.opts.Lineage.Close())
	return errors.Join(errs...)
}

// observedCatalog counts listings for metrics.
type observedCatalog struct {
	source.Catalog
	metrics *metrics.Metrics
	labels  metrics.Labels
}

func (c *observedCatalog) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.Catalog.List(ctx, prefix)
	if err != nil {
		c.metrics.IncSourceErrors(c.labels, "list")
		return nil, err
	}
	c.metrics.ObserveListing(c.labels, len(keys))
	return keys, nil
}

// defaultWorkerCommand re-executes the running binary as a worker.
func defaultWorkerCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return []string{exe, "worker"}, nil
}
