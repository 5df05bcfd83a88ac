package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/metadata"
	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

const (
	testSatellite = "16"
	testProduct   = "ABI-L2-CMIP"
	testSector    = "F"
)

func at(hour, min int) time.Time {
	return time.Date(2020, 8, 7, hour, min, 0, 0, time.UTC)
}

func goesName(ts time.Time) string {
	token := ts.UTC().Format("2006002150405")
	return fmt.Sprintf("OR_ABI-L2-CMIPF-M6C13_G16_s%s0_e%s0_c%s0.nc", token, token, token)
}

// remote is a file-backed bucket tree in a temp dir.
type remote struct {
	root string
	cfg  source.Config
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, layout.Bucket(testSatellite)), 0755); err != nil {
		t.Fatal(err)
	}
	return &remote{root: root, cfg: source.Config{Backend: "file", Root: root}}
}

// add writes an object observed at ts with size bytes and returns its path.
func (r *remote) add(t *testing.T, ts time.Time, size int) string {
	t.Helper()
	key := layout.HourPrefix(testSatellite, testProduct, testSector, ts) + goesName(ts)
	r.write(t, key, strings.Repeat("x", size))
	return key
}

func (r *remote) write(t *testing.T, key, content string) {
	t.Helper()
	full := filepath.Join(r.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (r *remote) catalog(t *testing.T) *spyCatalog {
	t.Helper()
	cat, err := source.New(context.Background(), r.cfg)
	if err != nil {
		t.Fatalf("source.New: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return &spyCatalog{Catalog: cat, failOn: map[string]bool{}}
}

// spyCatalog counts calls and injects fetch failures.
type spyCatalog struct {
	source.Catalog
	lists   int
	fetches int
	failOn  map[string]bool
}

func (c *spyCatalog) List(ctx context.Context, prefix string) ([]string, error) {
	c.lists++
	return c.Catalog.List(ctx, prefix)
}

func (c *spyCatalog) Fetch(ctx context.Context, path, localPath string) error {
	if c.failOn[path] {
		return &source.RemoteIOError{Op: "fetch", Path: path, Err: errors.New("access denied")}
	}
	c.fetches++
	return c.Catalog.Fetch(ctx, path, localPath)
}

// volumeFS is the local filesystem with a fixed volume usage.
type volumeFS struct {
	storage.LocalFS
	usage storage.Usage
}

func (v volumeFS) Usage(string) (storage.Usage, error) { return v.usage, nil }

func bigVolume() volumeFS {
	return volumeFS{usage: storage.Usage{Used: 0, Total: 1 << 40, Free: 1 << 40}}
}

func baseQuery(t *testing.T) query.Query {
	t.Helper()
	return query.Query{
		Satellite:  testSatellite,
		Product:    testProduct,
		Sector:     testSector,
		StagingDir: filepath.Join(t.TempDir(), "raw"),
		Start:      at(20, 0),
		End:        at(21, 59),
	}
}

func withProcessing(t *testing.T, q query.Query, fn query.TransformFunc, retain bool) query.Query {
	t.Helper()
	q.Processing = query.Enabled{
		Transform: fn,
		Prefix:    "cmip",
		OutputDir: filepath.Join(t.TempDir(), "out"),
		RetainRaw: retain,
	}
	return q
}

func newFetcher(t *testing.T, q query.Query, opts Options) *Fetcher {
	t.Helper()
	if opts.FS == nil {
		opts.FS = bigVolume()
	}
	f, err := New(context.Background(), q, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeProcessed is a transform writing a marker to the processed path.
func writeProcessed(_ context.Context, e workplan.Entry) error {
	if err := os.MkdirAll(filepath.Dir(e.ProcessedPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(e.ProcessedPath, []byte("processed"), 0644)
}

// lineageRecorder collects lineage records in memory.
type lineageRecorder struct {
	mu      sync.Mutex
	records []metadata.Record
}

func (l *lineageRecorder) RecordProcessed(_ context.Context, rec metadata.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *lineageRecorder) Close() error { return nil }

func (l *lineageRecorder) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
