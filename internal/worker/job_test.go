package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/withObsrvr/goes-fetcher/internal/exitcode"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/transform"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

func init() {
	transform.Register("worker-test-fail", func(context.Context, workplan.Entry, map[string]string) error {
		return errors.New("always fails")
	})
}

// TestWorkerHelperProcess is not a real test. It is re-executed by Spawn
// tests as the worker process.
func TestWorkerHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_WORKER_HELPER") != "1" {
		return
	}
	os.Exit(Main(context.Background(), os.Stdin))
}

func helperCommand() ([]string, []string) {
	return []string{os.Args[0], "-test.run=TestWorkerHelperProcess"},
		append(os.Environ(), "GO_WANT_WORKER_HELPER=1")
}

// remoteFixture lays out one remote object in a file-backed bucket.
func remoteFixture(t *testing.T) (source.Config, workplan.Entry) {
	t.Helper()
	root := t.TempDir()
	key := "noaa-goes16/ABI-L2-CMIPF/2020/220/20/in.nc"
	full := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("remote-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	local := t.TempDir()
	return source.Config{Backend: "file", Root: root}, workplan.Entry{
		RemoteKey:     key,
		RawPath:       filepath.Join(local, "raw", "in.nc"),
		ProcessedPath: filepath.Join(local, "out", "p_20200807_200000.nc"),
	}
}

func TestRun(t *testing.T) {
	cfg, entry := remoteFixture(t)

	code := Run(context.Background(), Job{Entry: entry, Transform: "copy", Source: cfg})
	if code != exitcode.Success {
		t.Fatalf("Run = %d, want success", code)
	}
	data, err := os.ReadFile(entry.ProcessedPath)
	if err != nil || string(data) != "remote-bytes" {
		t.Errorf("processed file = %q, %v", data, err)
	}
	if exists(entry.RawPath) {
		t.Error("raw file should be removed")
	}
}

func TestRunReportsSkip(t *testing.T) {
	cfg, entry := remoteFixture(t)
	job := Job{Entry: entry, Transform: "copy", Source: cfg}

	if code := Run(context.Background(), job); code != exitcode.Success {
		t.Fatalf("first Run = %d, want success", code)
	}
	if code := Run(context.Background(), job); code != exitcode.Skipped {
		t.Errorf("second Run = %d, want %d", code, exitcode.Skipped)
	}
}

func TestRunConfigErrors(t *testing.T) {
	cfg, entry := remoteFixture(t)

	if code := Run(context.Background(), Job{Entry: entry, Transform: "missing", Source: cfg}); code != exitcode.ConfigError {
		t.Errorf("unknown transform: code = %d, want %d", code, exitcode.ConfigError)
	}
	if code := Run(context.Background(), Job{Entry: entry, Transform: "copy", Source: source.Config{Backend: "ftp"}}); code != exitcode.ConfigError {
		t.Errorf("bad backend: code = %d, want %d", code, exitcode.ConfigError)
	}
}

func TestMainBadInput(t *testing.T) {
	if code := Main(context.Background(), strings.NewReader("{not json")); code != exitcode.ConfigError {
		t.Errorf("Main = %d, want %d", code, exitcode.ConfigError)
	}
}

func TestSpawn(t *testing.T) {
	command, env := helperCommand()

	tests := []struct {
		name      string
		transform string
		raise     bool
		expected  int
	}{
		{"success", "copy", false, exitcode.Success},
		{"tolerated failure", "worker-test-fail", false, exitcode.TransformTolerated},
		{"raised failure", "worker-test-fail", true, exitcode.TransformError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, entry := remoteFixture(t)
			code, err := Spawn(context.Background(), command, env, Job{
				Entry:                 entry,
				Transform:             tt.transform,
				RaiseOnTransformError: tt.raise,
				Source:                cfg,
			})
			if err != nil {
				t.Fatalf("Spawn: %v", err)
			}
			if code != tt.expected {
				t.Errorf("exit code = %d, want %d", code, tt.expected)
			}
		})
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := Spawn(context.Background(), []string{"/nonexistent/worker-binary"}, nil, Job{})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
