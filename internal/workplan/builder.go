package workplan

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
)

// Output configures where processed files land.
type Output struct {
	Prefix string
	Dir    string
}

// Request describes the remote window to plan.
type Request struct {
	Satellite  string
	Product    string
	Sector     string
	Start      time.Time
	End        time.Time
	StagingDir string
	Output     *Output // nil when processing is disabled
}

// HourBuckets returns every hour boundary from start (truncated) to end inclusive.
func HourBuckets(start, end time.Time) []time.Time {
	var hours []time.Time
	for h := start.UTC().Truncate(time.Hour); !h.After(end); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}

// Build lists every hour bucket in the request window, drops entries already
// present locally and returns the survivors sorted by observation time and
// limited to [Start, End]. A single malformed key fails the whole build.
func Build(ctx context.Context, req Request, catalog source.Catalog, fs storage.FS) (*Plan, error) {
	log := logging.Component("workplan").With(
		"satellite", req.Satellite,
		"product", req.Product+req.Sector,
	)

	hours := HourBuckets(req.Start, req.End)

	var keys []string
	seen := make(map[string]struct{})
	for _, h := range hours {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prefix := layout.HourPrefix(req.Satellite, req.Product, req.Sector, h)
		listed, err := catalog.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list hour %s: %w", h.Format(time.RFC3339), err)
		}
		for _, key := range listed {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	entries := make([]Entry, 0, len(keys))
	skipped := 0
	for _, key := range keys {
		entry, keep, err := resolve(req, key, fs)
		if err != nil {
			return nil, err
		}
		if !keep {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Time.Equal(entries[j].Time) {
			return entries[i].RemoteKey < entries[j].RemoteKey
		}
		return entries[i].Time.Before(entries[j].Time)
	})

	windowed := entries[:0]
	for _, e := range entries {
		if e.Time.Before(req.Start) || e.Time.After(req.End) {
			continue
		}
		windowed = append(windowed, e)
	}

	log.Debug("workplan built",
		"hours", len(hours),
		"listed", len(keys),
		"skipped_local", skipped,
		"entries", len(windowed),
	)

	return &Plan{Entries: windowed}, nil
}

// resolve derives the local paths of one key and reports whether it still
// needs work. With processing enabled the timestamp is decoded first since
// the processed path depends on it.
func resolve(req Request, key string, fs storage.FS) (Entry, bool, error) {
	entry := Entry{
		RemoteKey: key,
		RawPath:   filepath.Join(req.StagingDir, layout.Base(key)),
	}

	if req.Output == nil {
		if fs.Exists(entry.RawPath) {
			return entry, false, nil
		}
		ts, err := layout.DecodeTimestamp(key)
		if err != nil {
			return entry, false, err
		}
		entry.Time = ts
		return entry, true, nil
	}

	ts, err := layout.DecodeTimestamp(key)
	if err != nil {
		return entry, false, err
	}
	entry.Time = ts
	entry.ProcessedPath = filepath.Join(req.Output.Dir, layout.ProcessedName(req.Output.Prefix, ts))
	if fs.Exists(entry.ProcessedPath) {
		return entry, false, nil
	}
	return entry, true, nil
}
