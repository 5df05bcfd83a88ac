package workplan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// planRow is the parquet layout of one entry.
type planRow struct {
	RemoteKey     string    `parquet:"remote_key"`
	RawPath       string    `parquet:"raw_path"`
	ProcessedPath string    `parquet:"processed_path"`
	Time          time.Time `parquet:"time,timestamp(millisecond)"`
}

// Save writes plan to path. The format follows the extension:
// .json, .json.zst or .parquet.
func Save(path string, plan *Plan) error {
	if plan == nil {
		plan = &Plan{}
	}

	switch {
	case strings.HasSuffix(path, ".parquet"):
		rows := make([]planRow, len(plan.Entries))
		for i, e := range plan.Entries {
			rows[i] = planRow(e)
		}
		if err := parquet.WriteFile(path, rows); err != nil {
			return fmt.Errorf("write parquet plan %s: %w", path, err)
		}
		return nil
	case strings.HasSuffix(path, ".json.zst"):
		return writeFile(path, func(w io.Writer) error {
			enc, err := zstd.NewWriter(w)
			if err != nil {
				return fmt.Errorf("create zstd encoder: %w", err)
			}
			if err := json.NewEncoder(enc).Encode(plan); err != nil {
				enc.Close()
				return err
			}
			return enc.Close()
		})
	case strings.HasSuffix(path, ".json"):
		return writeFile(path, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		})
	default:
		return fmt.Errorf("unsupported plan file extension: %s", filepath.Base(path))
	}
}

// Load reads a plan previously written by Save.
func Load(path string) (*Plan, error) {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		rows, err := parquet.ReadFile[planRow](path)
		if err != nil {
			return nil, fmt.Errorf("read parquet plan %s: %w", path, err)
		}
		plan := &Plan{Entries: make([]Entry, len(rows))}
		for i, r := range rows {
			r.Time = r.Time.UTC()
			plan.Entries[i] = Entry(r)
		}
		return plan, nil
	case strings.HasSuffix(path, ".json.zst"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open plan %s: %w", path, err)
		}
		defer f.Close()

		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		return decodeJSON(path, dec)
	case strings.HasSuffix(path, ".json"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open plan %s: %w", path, err)
		}
		defer f.Close()
		return decodeJSON(path, f)
	default:
		return nil, fmt.Errorf("unsupported plan file extension: %s", filepath.Base(path))
	}
}

func decodeJSON(path string, r io.Reader) (*Plan, error) {
	var plan Plan
	if err := json.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", path, err)
	}
	return &plan, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tempPath, err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encode plan %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}
