package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/goes-fetcher/internal/exitcode"
	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/runlog"
	"github.com/withObsrvr/goes-fetcher/internal/transform"
	"github.com/withObsrvr/goes-fetcher/internal/worker"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// ParallelOptions controls ProcessParallel.
type ParallelOptions struct {
	// Transform names a registered transform; worker processes resolve it
	// from the same registry.
	Transform string
	Args      map[string]string
	Workers   int

	// RaiseOnTransformError applies inside each worker only.
	RaiseOnTransformError bool

	// LogPath, when set, receives one run-log line per cohort.
	LogPath string
	Label   string
}

// CohortReport counts the worker exit codes of one cohort.
type CohortReport struct {
	Index     int
	Entries   []string
	Codes     []int
	Successes int
	Warnings  int
	Errors    int
	Duration  time.Duration
}

// ParallelReport summarizes ProcessParallel.
type ParallelReport struct {
	Cohorts   []CohortReport
	Successes int
	Warnings  int
	Errors    int
}

// ProcessParallel splits the workplan into Workers contiguous chunks and
// runs them in lockstep: cohort i holds entry i of every chunk, runs one
// isolated worker per entry and is joined before cohort i+1 starts.
// Worker failures are counted, never propagated.
func (f *Fetcher) ProcessParallel(ctx context.Context, opts ParallelOptions) (ParallelReport, error) {
	var report ParallelReport

	p, err := f.enabled()
	if err != nil {
		return report, err
	}
	if opts.Transform == "" {
		return report, &query.ConfigurationError{Field: "transform", Reason: "required for parallel processing"}
	}
	if _, err := transform.Lookup(opts.Transform); err != nil {
		return report, &query.ConfigurationError{
			Field:  "transform",
			Reason: fmt.Sprintf("%v (registered: %s)", err, strings.Join(transform.Names(), ", ")),
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	run, err := f.jobRunner()
	if err != nil {
		return report, err
	}

	// The plan is read once; workers receive copies of their entries.
	plan, err := f.Workplan(ctx)
	if err != nil {
		return report, err
	}
	if err := f.prepareDirs(p); err != nil {
		return report, err
	}

	var log *runlog.Log
	if opts.LogPath != "" {
		log = runlog.New(opts.LogPath)
	}
	label := opts.Label
	if label == "" {
		label = "goes-fetcher"
	}
	server := runlog.Hostname()

	cohorts := plan.Cohorts(opts.Workers)
	for i, cohort := range cohorts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		cr := f.runCohort(ctx, i, cohort, p, opts, run)
		report.Cohorts = append(report.Cohorts, cr)
		report.Successes += cr.Successes
		report.Warnings += cr.Warnings
		report.Errors += cr.Errors
		f.opts.Metrics.IncCohortsCompleted(f.labels)

		f.log.Info("cohort complete",
			"cohort", i+1,
			"cohorts", len(cohorts),
			"successes", cr.Successes,
			"warnings", cr.Warnings,
			"errors", cr.Errors,
			"duration", cr.Duration,
		)

		if log != nil {
			rec := runlog.Record{
				Time:            time.Now(),
				Errors:          cr.Errors,
				Successes:       cr.Successes,
				Warnings:        cr.Warnings,
				SubprocessLabel: fmt.Sprintf("%s cohort %d/%d", label, i+1, len(cohorts)),
				ServerLabel:     server,
				Comment:         cohortComment(cr),
			}
			if err := log.Append(rec); err != nil {
				f.log.Warn("failed to append run log", "path", opts.LogPath, "error", err)
			}
		}
	}

	return report, nil
}

// runCohort starts one worker per entry and waits for all of them.
func (f *Fetcher) runCohort(ctx context.Context, index int, cohort []workplan.Entry, p query.Enabled, opts ParallelOptions, run jobRunner) CohortReport {
	start := time.Now()
	cr := CohortReport{
		Index:   index,
		Entries: make([]string, len(cohort)),
		Codes:   make([]int, len(cohort)),
	}

	var g errgroup.Group
	for j, entry := range cohort {
		cr.Entries[j] = entry.RemoteKey
		job := worker.Job{
			Entry:                 entry,
			Transform:             opts.Transform,
			Args:                  opts.Args,
			RetainRaw:             p.RetainRaw,
			RaiseOnTransformError: opts.RaiseOnTransformError,
			Source:                f.opts.SourceConfig,
			CorrelationID:         f.opts.CorrelationID,
		}
		j := j
		g.Go(func() error {
			cr.Codes[j] = run(ctx, job)
			return nil
		})
	}
	g.Wait()

	for j, code := range cr.Codes {
		switch exitcode.Classify(code) {
		case exitcode.ClassSuccess:
			cr.Successes++
			if code == exitcode.Success {
				f.recordLineage(ctx, cohort[j], opts.Transform)
			}
		case exitcode.ClassWarning:
			cr.Warnings++
		default:
			cr.Errors++
		}
		f.opts.Metrics.IncProcessed(f.labels, "worker_exit_"+exitcode.Classify(code).String())
	}
	cr.Duration = time.Since(start)
	return cr
}

// jobRunner executes one worker job and returns its exit code.
type jobRunner func(ctx context.Context, job worker.Job) int

func (f *Fetcher) jobRunner() (jobRunner, error) {
	if f.opts.Isolation == IsolationScoped {
		return worker.Run, nil
	}

	command := f.opts.WorkerCommand
	if len(command) == 0 {
		var err error
		if command, err = defaultWorkerCommand(); err != nil {
			return nil, err
		}
	}
	env := f.opts.WorkerEnv

	return func(ctx context.Context, job worker.Job) int {
		code, err := worker.Spawn(ctx, command, env, job)
		if err != nil {
			f.log.Error("worker process failed", "remote_key", job.Entry.RemoteKey, "error", err)
		}
		return code
	}, nil
}

// cohortComment lists the basenames of entries that did not succeed.
func cohortComment(cr CohortReport) string {
	var failed []string
	for j, code := range cr.Codes {
		if exitcode.Classify(code) != exitcode.ClassSuccess {
			failed = append(failed, fmt.Sprintf("%s(%d)", layout.Base(cr.Entries[j]), code))
		}
	}
	if len(failed) == 0 {
		return "ok"
	}
	return "failed: " + strings.Join(failed, " ")
}
