package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// DownloadOptions controls Download.
type DownloadOptions struct {
	// Overwrite fetches entries whose raw file already exists.
	Overwrite bool
	// StopAfterFirst returns after the first actual transfer.
	StopAfterFirst bool
	// IgnoreLowDiskSpace disables the projected-usage guard.
	IgnoreLowDiskSpace bool
	// Plan replaces the session workplan for this call only.
	Plan *workplan.Plan
}

// DownloadReport summarizes a Download call.
type DownloadReport struct {
	Fetched int
	Skipped int
	Bytes   int64
}

// Download fetches every workplan entry into the staging directory in
// timestamp order. The first failed transfer aborts the call.
func (f *Fetcher) Download(ctx context.Context, opts DownloadOptions) (DownloadReport, error) {
	var report DownloadReport

	plan := opts.Plan
	if plan == nil {
		var err error
		if plan, err = f.Workplan(ctx); err != nil {
			return report, err
		}
	}

	if !opts.IgnoreLowDiskSpace {
		est, err := f.estimate(ctx, plan)
		if errors.Is(err, ErrNothingToDo) {
			f.log.Info("nothing to download")
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("estimate disk usage: %w", err)
		}
		if est.PercentUsedAfter() > MaxUsagePercent {
			return report, &LowDiskSpaceError{PercentUsedAfter: est.PercentUsedAfter(), BytesNeeded: est.BytesNeeded}
		}
	}

	if err := f.fs.EnsureDir(f.query.StagingDir); err != nil {
		return report, err
	}

	for _, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if !opts.Overwrite && f.fs.Exists(entry.RawPath) {
			report.Skipped++
			f.opts.Metrics.IncSkipped(f.labels, "raw_exists")
			continue
		}

		if err := f.catalog.Fetch(ctx, entry.RemoteKey, entry.RawPath); err != nil {
			f.opts.Metrics.IncSourceErrors(f.labels, "fetch")
			return report, fmt.Errorf("download %s: %w", entry.RemoteKey, err)
		}

		size, err := f.fs.Size(entry.RawPath)
		if err != nil {
			f.log.Debug("cannot size downloaded file", "raw_path", entry.RawPath, "error", err)
		}
		report.Fetched++
		report.Bytes += size
		f.opts.Metrics.ObserveDownload(f.labels, size)
		f.log.Debug("downloaded", "remote_key", entry.RemoteKey, "raw_path", entry.RawPath, "bytes", size)

		if opts.StopAfterFirst {
			break
		}
	}

	f.log.Info("download complete",
		"fetched", report.Fetched,
		"skipped", report.Skipped,
		"bytes", report.Bytes,
	)
	return report, nil
}
