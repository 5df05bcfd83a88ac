// Package worker runs the transform-and-cleanup step for a single workplan
// entry. The same code backs the sequential executor, in-process scoped
// workers and the hidden worker sub-command used for process isolation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/metrics"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Outcome is the result of processing one entry.
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkipped
	OutcomeTransformFailed
	OutcomeFetchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeTransformFailed:
		return "transform_failed"
	case OutcomeFetchFailed:
		return "fetch_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TransformError wraps a failure raised by a transform, including a
// recovered panic.
type TransformError struct {
	RemoteKey string
	Err       error
	Panicked  bool
}

func (e *TransformError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("transform panicked on %s: %v", e.RemoteKey, e.Err)
	}
	return fmt.Sprintf("transform failed on %s: %v", e.RemoteKey, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Options controls ProcessEntry.
type Options struct {
	RetainRaw             bool
	RaiseOnTransformError bool
	Metrics               *metrics.Metrics
	Labels                metrics.Labels
	Logger                *slog.Logger
}

// ProcessEntry skips entries already processed, fetches the raw file when it
// is missing, runs fn and removes the raw file unless retained.
//
// Without RaiseOnTransformError, fetch and transform failures are reported
// through the Outcome and the returned error is nil. With it, the failure is
// returned and the raw file of the failing entry is left in place.
func ProcessEntry(ctx context.Context, entry workplan.Entry, fn query.TransformFunc, catalog source.Catalog, fs storage.FS, opts Options) (Outcome, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("remote_key", entry.RemoteKey)

	if entry.ProcessedPath != "" && fs.Exists(entry.ProcessedPath) {
		log.Debug("already processed, skipping", "processed_path", entry.ProcessedPath)
		opts.Metrics.IncProcessed(opts.Labels, OutcomeSkipped.String())
		return OutcomeSkipped, nil
	}

	if !fs.Exists(entry.RawPath) {
		if err := catalog.Fetch(ctx, entry.RemoteKey, entry.RawPath); err != nil {
			opts.Metrics.IncSourceErrors(opts.Labels, "fetch")
			opts.Metrics.IncProcessed(opts.Labels, OutcomeFetchFailed.String())
			if opts.RaiseOnTransformError {
				return OutcomeFetchFailed, fmt.Errorf("fetch raw file: %w", err)
			}
			log.Warn("fetch failed, continuing", "error", err)
			return OutcomeFetchFailed, nil
		}
		opts.Metrics.ObserveDownload(opts.Labels, 0)
	}

	start := time.Now()
	err := invoke(ctx, fn, entry)
	opts.Metrics.ObserveTransformDuration(opts.Labels, time.Since(start).Seconds())

	if err != nil {
		opts.Metrics.IncProcessed(opts.Labels, OutcomeTransformFailed.String())
		if opts.RaiseOnTransformError {
			return OutcomeTransformFailed, err
		}
		log.Warn("transform failed, continuing", "error", err)
		cleanup(log, fs, entry, opts.RetainRaw)
		return OutcomeTransformFailed, nil
	}

	cleanup(log, fs, entry, opts.RetainRaw)
	opts.Metrics.IncProcessed(opts.Labels, OutcomeProcessed.String())
	log.Debug("processed", "processed_path", entry.ProcessedPath, "duration", time.Since(start))
	return OutcomeProcessed, nil
}

// invoke calls the transform behind a recover boundary: the callback is
// external code and a panic must not take the batch down.
func invoke(ctx context.Context, fn query.TransformFunc, entry workplan.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("transform panic", "stack", string(debug.Stack()))
			err = &TransformError{
				RemoteKey: entry.RemoteKey,
				Err:       fmt.Errorf("%v", r),
				Panicked:  true,
			}
		}
	}()

	if err := fn(ctx, entry); err != nil {
		var terr *TransformError
		if errors.As(err, &terr) {
			return err
		}
		return &TransformError{RemoteKey: entry.RemoteKey, Err: err}
	}
	return nil
}

func cleanup(log *slog.Logger, fs storage.FS, entry workplan.Entry, retain bool) {
	if retain {
		return
	}
	if err := fs.Remove(entry.RawPath); err != nil {
		log.Warn("failed to remove raw file", "raw_path", entry.RawPath, "error", err)
	}
}
