package fetcher

import (
	"context"
	"fmt"

	"github.com/withObsrvr/goes-fetcher/internal/metadata"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/worker"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// ProcessOptions controls Process.
type ProcessOptions struct {
	RaiseOnTransformError bool
}

// ProcessReport counts entry outcomes of a sequential run.
type ProcessReport struct {
	Processed         int
	Skipped           int
	TransformFailures int
	FetchFailures     int
}

func (r *ProcessReport) add(o worker.Outcome) {
	switch o {
	case worker.OutcomeProcessed:
		r.Processed++
	case worker.OutcomeSkipped:
		r.Skipped++
	case worker.OutcomeTransformFailed:
		r.TransformFailures++
	case worker.OutcomeFetchFailed:
		r.FetchFailures++
	}
}

// enabled returns the processing configuration or a ConfigurationError.
func (f *Fetcher) enabled() (query.Enabled, error) {
	p, ok := f.query.Enabled()
	if !ok {
		return query.Enabled{}, &query.ConfigurationError{
			Field:  "processing",
			Reason: "processing is not configured for this query",
		}
	}
	return p, nil
}

// Process transforms every workplan entry in timestamp order on the calling
// goroutine. Raw files missing locally are fetched first.
func (f *Fetcher) Process(ctx context.Context, opts ProcessOptions) (ProcessReport, error) {
	var report ProcessReport

	p, err := f.enabled()
	if err != nil {
		return report, err
	}

	plan, err := f.Workplan(ctx)
	if err != nil {
		return report, err
	}
	if err := f.prepareDirs(p); err != nil {
		return report, err
	}

	for _, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := worker.ProcessEntry(ctx, entry, p.Transform, f.catalog, f.fs, worker.Options{
			RetainRaw:             p.RetainRaw,
			RaiseOnTransformError: opts.RaiseOnTransformError,
			Metrics:               f.opts.Metrics,
			Labels:                f.labels,
			Logger:                f.log,
		})
		report.add(outcome)
		if err != nil {
			return report, fmt.Errorf("process %s: %w", entry.RemoteKey, err)
		}
		if outcome == worker.OutcomeProcessed {
			f.recordLineage(ctx, entry, f.opts.TransformName)
		}
	}

	f.log.Info("processing complete",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"transform_failures", report.TransformFailures,
		"fetch_failures", report.FetchFailures,
	)
	return report, nil
}

func (f *Fetcher) prepareDirs(p query.Enabled) error {
	if err := f.fs.EnsureDir(f.query.StagingDir); err != nil {
		return err
	}
	return f.fs.EnsureDir(p.OutputDir)
}

// recordLineage writes a lineage row. Failures are logged, not returned.
func (f *Fetcher) recordLineage(ctx context.Context, entry workplan.Entry, transform string) {
	rec := metadata.NewRecord(f.query.Satellite, f.query.Product+f.query.Sector, entry, transform, f.opts.CorrelationID)
	if size, err := f.fs.Size(entry.ProcessedPath); err == nil {
		rec.ByteSize = size
	}
	if err := f.opts.Lineage.RecordProcessed(ctx, rec); err != nil {
		f.log.Warn("failed to record lineage", "remote_key", entry.RemoteKey, "error", err)
	}
}
