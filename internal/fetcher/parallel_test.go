package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/exitcode"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/transform"
	"github.com/withObsrvr/goes-fetcher/internal/worker"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

func init() {
	// Writes "<start> <end>" in unix nanoseconds to the processed path.
	transform.Register("fetcher-test-stamp", func(_ context.Context, e workplan.Entry, _ map[string]string) error {
		start := time.Now().UnixNano()
		time.Sleep(100 * time.Millisecond)
		end := time.Now().UnixNano()
		if err := os.MkdirAll(filepath.Dir(e.ProcessedPath), 0755); err != nil {
			return err
		}
		return os.WriteFile(e.ProcessedPath, []byte(fmt.Sprintf("%d %d", start, end)), 0644)
	})
	transform.Register("fetcher-test-fail", func(context.Context, workplan.Entry, map[string]string) error {
		return errors.New("always fails")
	})
}

// TestFetcherWorkerHelper is not a real test. ProcessParallel re-executes the
// test binary with it as the worker entry point.
func TestFetcherWorkerHelper(t *testing.T) {
	if os.Getenv("GO_WANT_FETCHER_WORKER") != "1" {
		return
	}
	os.Exit(worker.Main(context.Background(), os.Stdin))
}

func processOptions(r *remote, isolation Isolation) Options {
	return Options{
		SourceConfig:  r.cfg,
		FS:            bigVolume(),
		Isolation:     isolation,
		WorkerCommand: []string{os.Args[0], "-test.run=TestFetcherWorkerHelper"},
		WorkerEnv:     append(os.Environ(), "GO_WANT_FETCHER_WORKER=1"),
	}
}

// parallelQuery enables processing; the in-process callback is unused by
// ProcessParallel, which resolves transforms by name.
func parallelQuery(t *testing.T) query.Query {
	return withProcessing(t, baseQuery(t), writeProcessed, false)
}

func readStamp(t *testing.T, path string) (start, end int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stamp %s: %v", path, err)
	}
	parts := strings.Fields(string(data))
	if len(parts) != 2 {
		t.Fatalf("bad stamp %q", data)
	}
	start, _ = strconv.ParseInt(parts[0], 10, 64)
	end, _ = strconv.ParseInt(parts[1], 10, 64)
	return start, end
}

func TestProcessParallelCohortOrdering(t *testing.T) {
	for _, isolation := range []Isolation{IsolationProcess, IsolationScoped} {
		t.Run(string(isolation), func(t *testing.T) {
			r := newRemote(t)
			for m := 0; m < 4; m++ {
				r.add(t, at(20, m), 5)
			}
			logPath := filepath.Join(t.TempDir(), "run.log")
			f := newFetcher(t, parallelQuery(t), processOptions(r, isolation))

			report, err := f.ProcessParallel(context.Background(), ParallelOptions{
				Transform: "fetcher-test-stamp",
				Workers:   2,
				LogPath:   logPath,
				Label:     "test",
			})
			if err != nil {
				t.Fatalf("ProcessParallel: %v", err)
			}
			if len(report.Cohorts) != 2 || report.Successes != 4 {
				t.Fatalf("report = %+v", report)
			}

			plan, _ := f.Workplan(context.Background())
			// Chunks {e0,e1} {e2,e3} give cohorts {e0,e2} then {e1,e3}.
			cohorts := plan.Cohorts(2)
			var firstEnd int64
			for _, e := range cohorts[0] {
				_, end := readStamp(t, e.ProcessedPath)
				if end > firstEnd {
					firstEnd = end
				}
			}
			for _, e := range cohorts[1] {
				start, _ := readStamp(t, e.ProcessedPath)
				if start < firstEnd {
					t.Errorf("%s started before the previous cohort finished", e.RemoteKey)
				}
			}

			for _, e := range plan.Entries {
				if fileExists(e.RawPath) {
					t.Errorf("raw file left behind: %s", e.RawPath)
				}
			}

			f2, err := os.Open(logPath)
			if err != nil {
				t.Fatalf("open run log: %v", err)
			}
			defer f2.Close()
			rows, err := csv.NewReader(f2).ReadAll()
			if err != nil {
				t.Fatalf("read run log: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("expected one run-log line per cohort, got %d", len(rows))
			}
			if rows[0][1] != "0" || rows[0][3] != "2" || rows[0][5] != "test cohort 1/2" {
				t.Errorf("unexpected run-log line: %v", rows[0])
			}
		})
	}
}

func TestProcessParallelCountsFailures(t *testing.T) {
	tests := []struct {
		name      string
		raise     bool
		wantCode  int
		wantState string
	}{
		{"tolerated", false, exitcode.TransformTolerated, "0"},
		{"raised", true, exitcode.TransformError, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRemote(t)
			r.add(t, at(20, 0), 5)
			r.add(t, at(20, 1), 5)
			r.add(t, at(20, 2), 5)
			logPath := filepath.Join(t.TempDir(), "run.log")
			f := newFetcher(t, parallelQuery(t), processOptions(r, IsolationScoped))

			report, err := f.ProcessParallel(context.Background(), ParallelOptions{
				Transform:             "fetcher-test-fail",
				Workers:               3,
				RaiseOnTransformError: tt.raise,
				LogPath:               logPath,
			})
			if err != nil {
				t.Fatalf("a failing worker must not fail the run: %v", err)
			}
			if len(report.Cohorts) != 1 {
				t.Fatalf("expected a single cohort, got %d", len(report.Cohorts))
			}
			for _, code := range report.Cohorts[0].Codes {
				if code != tt.wantCode {
					t.Errorf("exit code = %d, want %d", code, tt.wantCode)
				}
			}

			data, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("read run log: %v", err)
			}
			fields := strings.Split(strings.TrimSpace(string(data)), ",")
			if fields[1] != tt.wantState {
				t.Errorf("run_status = %s, want %s (%s)", fields[1], tt.wantState, data)
			}
		})
	}
}

func TestProcessParallelUnknownTransform(t *testing.T) {
	r := newRemote(t)
	f := newFetcher(t, parallelQuery(t), processOptions(r, IsolationScoped))

	_, err := f.ProcessParallel(context.Background(), ParallelOptions{Transform: "missing", Workers: 2})
	var cerr *query.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestCohortComment(t *testing.T) {
	cr := CohortReport{
		Entries: []string{"b/a.nc", "b/c.nc"},
		Codes:   []int{exitcode.Success, exitcode.FetchTolerated},
	}
	if got := cohortComment(cr); got != "failed: c.nc(5)" {
		t.Errorf("comment = %q", got)
	}
	cr.Codes[1] = exitcode.Success
	if got := cohortComment(cr); got != "ok" {
		t.Errorf("comment = %q", got)
	}
}

func TestProcessParallelSkipsWriteNoLineage(t *testing.T) {
	r := newRemote(t)
	r.add(t, at(20, 0), 5)
	r.add(t, at(20, 1), 5)
	lineage := &lineageRecorder{}
	opts := processOptions(r, IsolationScoped)
	opts.Lineage = lineage
	f := newFetcher(t, parallelQuery(t), opts)
	ctx := context.Background()
	popts := ParallelOptions{Transform: "copy", Workers: 2}

	if _, err := f.ProcessParallel(ctx, popts); err != nil {
		t.Fatalf("ProcessParallel: %v", err)
	}
	if lineage.count() != 2 {
		t.Fatalf("lineage records = %d, want 2", lineage.count())
	}

	// The cached plan still lists both entries; workers now find them done.
	report, err := f.ProcessParallel(ctx, popts)
	if err != nil {
		t.Fatalf("second ProcessParallel: %v", err)
	}
	if report.Successes != 2 || report.Errors != 0 || report.Warnings != 0 {
		t.Errorf("report = %+v", report)
	}
	for _, code := range report.Cohorts[0].Codes {
		if code != exitcode.Skipped {
			t.Errorf("exit code = %d, want %d", code, exitcode.Skipped)
		}
	}
	if lineage.count() != 2 {
		t.Errorf("skipped entries must not be recorded again, got %d records", lineage.count())
	}
	if got := cohortComment(report.Cohorts[0]); got != "ok" {
		t.Errorf("comment = %q", got)
	}
}
