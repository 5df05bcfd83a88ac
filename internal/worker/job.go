package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/withObsrvr/goes-fetcher/internal/exitcode"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
	"github.com/withObsrvr/goes-fetcher/internal/transform"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Job is the self-contained description of one entry handed to a worker.
// It carries the source configuration, never a live adapter.
type Job struct {
	Entry                 workplan.Entry    `json:"entry"`
	Transform             string            `json:"transform"`
	Args                  map[string]string `json:"args,omitempty"`
	RetainRaw             bool              `json:"retain_raw"`
	RaiseOnTransformError bool              `json:"raise_on_transform_error"`
	Source                source.Config     `json:"source"`
	CorrelationID         string            `json:"correlation_id,omitempty"`
}

// Run executes job with an adapter created for this call and closed before
// returning, and maps the result to an exit code.
func Run(ctx context.Context, job Job) int {
	ctx = logging.WithCorrelationID(ctx, job.CorrelationID)
	log := logging.WorkerLogger(ctx, job.Entry.RemoteKey)

	fn, err := transform.Bind(job.Transform, job.Args)
	if err != nil {
		log.Error("resolve transform", "error", err)
		return exitcode.ConfigError
	}

	catalog, err := source.New(ctx, job.Source)
	if err != nil {
		log.Error("create source", "error", err)
		return exitcode.ConfigError
	}
	defer catalog.Close()

	outcome, err := ProcessEntry(ctx, job.Entry, fn, catalog, storage.NewLocalFS(), Options{
		RetainRaw:             job.RetainRaw,
		RaiseOnTransformError: job.RaiseOnTransformError,
		Logger:                log,
	})
	return Code(outcome, err)
}

// Code maps a ProcessEntry result to an exit code.
func Code(outcome Outcome, err error) int {
	if err != nil {
		var rerr *source.RemoteIOError
		var terr *TransformError
		switch {
		case errors.As(err, &rerr):
			return exitcode.RemoteIOError
		case errors.As(err, &terr):
			return exitcode.TransformError
		default:
			return exitcode.InternalError
		}
	}

	switch outcome {
	case OutcomeProcessed:
		return exitcode.Success
	case OutcomeSkipped:
		return exitcode.Skipped
	case OutcomeTransformFailed:
		return exitcode.TransformTolerated
	case OutcomeFetchFailed:
		return exitcode.FetchTolerated
	default:
		return exitcode.InternalError
	}
}

// Main decodes a Job from r and runs it.
func Main(ctx context.Context, r io.Reader) int {
	var job Job
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		slog.Error("decode worker job", "error", err)
		return exitcode.ConfigError
	}
	return Run(ctx, job)
}

// Spawn starts command as a separate OS process, writes job to its stdin and
// waits for it. The exit code is returned; err is set only when the process
// could not be started or was terminated without an exit status.
func Spawn(ctx context.Context, command []string, env []string, job Job) (int, error) {
	if len(command) == 0 {
		return exitcode.InternalError, errors.New("empty worker command")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return exitcode.InternalError, fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if env != nil {
		cmd.Env = env
	}

	err = cmd.Run()
	if err == nil {
		return exitcode.Success, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return exitcode.InternalError, fmt.Errorf("run worker %s: %w", command[0], err)
}
