package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Copy copies the raw file to the processed path.
func Copy(_ context.Context, entry workplan.Entry, _ map[string]string) error {
	if entry.ProcessedPath == "" {
		return errors.New("copy: entry has no processed path")
	}

	src, err := os.Open(entry.RawPath)
	if err != nil {
		return fmt.Errorf("open raw file: %w", err)
	}
	defer src.Close()

	dir := filepath.Dir(entry.ProcessedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := entry.ProcessedPath + ".tmp"
	dst, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tempPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempPath)
		return fmt.Errorf("copy %s: %w", entry.RawPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, entry.ProcessedPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, entry.ProcessedPath, err)
	}
	return nil
}

// Exec runs args["command"] with {raw}, {out} and {time} substituted in each
// whitespace-separated argument. Output is included in the error on failure.
func Exec(ctx context.Context, entry workplan.Entry, args map[string]string) error {
	command := strings.Fields(args["command"])
	if len(command) == 0 {
		return errors.New("exec: command argument is required")
	}

	replacer := strings.NewReplacer(
		"{raw}", entry.RawPath,
		"{out}", entry.ProcessedPath,
		"{time}", entry.Time.UTC().Format(time.RFC3339),
	)
	for i, arg := range command {
		command[i] = replacer.Replace(arg)
	}

	if entry.ProcessedPath != "" {
		dir := filepath.Dir(entry.ProcessedPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exec %s: %w: %s", command[0], err, strings.TrimSpace(output.String()))
	}
	return nil
}
