package workplan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/storage"
)

// fakeCatalog serves listings keyed by hour prefix.
type fakeCatalog struct {
	objects   map[string][]string
	listCalls []string
	listErr   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{objects: make(map[string][]string)}
}

// add registers a GOES-style object observed at ts, listed under its own hour.
func (c *fakeCatalog) add(ts time.Time) string {
	return c.addUnder(layout.HourPrefix("16", "ABI-L2-CMIP", "F", ts), ts)
}

func (c *fakeCatalog) addUnder(prefix string, ts time.Time) string {
	key := prefix + goesName(ts)
	c.objects[prefix] = append(c.objects[prefix], key)
	sort.Strings(c.objects[prefix])
	return key
}

func (c *fakeCatalog) List(_ context.Context, prefix string) ([]string, error) {
	c.listCalls = append(c.listCalls, prefix)
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.objects[prefix], nil
}

func (c *fakeCatalog) ListDirs(context.Context, string) ([]string, error) { return nil, nil }
func (c *fakeCatalog) SizeOf(context.Context, string) (int64, error)      { return 0, nil }
func (c *fakeCatalog) Fetch(context.Context, string, string) error        { return nil }
func (c *fakeCatalog) Close() error                                       { return nil }

// fakeFS reports existence from a set of paths.
type fakeFS struct {
	existing map[string]bool
}

func newFakeFS() *fakeFS { return &fakeFS{existing: make(map[string]bool)} }

func (f *fakeFS) Exists(path string) bool    { return f.existing[path] }
func (f *fakeFS) Remove(path string) error   { delete(f.existing, path); return nil }
func (f *fakeFS) EnsureDir(string) error     { return nil }
func (f *fakeFS) Size(string) (int64, error) { return 0, nil }
func (f *fakeFS) Usage(string) (storage.Usage, error) {
	return storage.Usage{}, nil
}

func goesName(ts time.Time) string {
	token := ts.UTC().Format("2006002150405")
	return fmt.Sprintf("OR_ABI-L2-CMIPF-M6C13_G16_s%s0_e%s0_c%s0.nc", token, token, token)
}

func date(hour, min int) time.Time {
	return time.Date(2020, 8, 7, hour, min, 0, 0, time.UTC)
}

func baseRequest() Request {
	return Request{
		Satellite:  "16",
		Product:    "ABI-L2-CMIP",
		Sector:     "F",
		Start:      date(20, 15),
		End:        date(21, 45),
		StagingDir: "/data/raw",
	}
}

func TestHourBuckets(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected int
	}{
		{"sub-hour window", date(20, 15), date(20, 45), 1},
		{"spans two hours", date(20, 15), date(21, 45), 2},
		{"exact hour bounds", date(20, 0), date(22, 0), 3},
		{"end before start", date(21, 0), date(20, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(HourBuckets(tt.start, tt.end)); got != tt.expected {
				t.Errorf("HourBuckets = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestBuildWindowAndOrder(t *testing.T) {
	cat := newFakeCatalog()
	// Inserted out of order and partly outside the window.
	cat.add(date(21, 50))
	cat.add(date(21, 10))
	cat.add(date(20, 10))
	cat.add(date(20, 20))
	cat.add(date(21, 45))

	req := baseRequest()
	plan, err := Build(context.Background(), req, cat, newFakeFS())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []time.Time{date(20, 20), date(21, 10), date(21, 45)}
	if plan.Len() != len(want) {
		t.Fatalf("plan has %d entries, want %d", plan.Len(), len(want))
	}
	for i, e := range plan.Entries {
		if !e.Time.Equal(want[i]) {
			t.Errorf("entry %d time = %v, want %v", i, e.Time, want[i])
		}
		if e.Time.Before(req.Start) || e.Time.After(req.End) {
			t.Errorf("entry %d outside window: %v", i, e.Time)
		}
		if filepath.Base(e.RawPath) != layout.Base(e.RemoteKey) {
			t.Errorf("entry %d basename mismatch: %s vs %s", i, e.RawPath, e.RemoteKey)
		}
		if e.ProcessedPath != "" {
			t.Errorf("entry %d has processed path without processing", i)
		}
	}

	if len(cat.listCalls) != 2 {
		t.Errorf("expected one listing per hour bucket (2), got %d", len(cat.listCalls))
	}
}

func TestBuildFileListedUnderNeighbouringHour(t *testing.T) {
	cat := newFakeCatalog()
	// Observation time 20:59:59 but stored in the 21 folder.
	prefix := layout.HourPrefix("16", "ABI-L2-CMIP", "F", date(21, 0))
	cat.addUnder(prefix, date(20, 59).Add(59*time.Second))

	plan, err := Build(context.Background(), baseRequest(), cat, newFakeFS())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", plan.Len())
	}
}

func TestBuildIdempotent(t *testing.T) {
	cat := newFakeCatalog()
	for m := 0; m < 60; m += 10 {
		cat.add(date(20, m))
		cat.add(date(21, m))
	}
	fs := newFakeFS()

	first, err := Build(context.Background(), baseRequest(), cat, fs)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	second, err := Build(context.Background(), baseRequest(), cat, fs)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two builds against unchanged state differ")
	}
}

func TestBuildDedupRaw(t *testing.T) {
	cat := newFakeCatalog()
	key := cat.add(date(20, 30))
	cat.add(date(20, 40))
	fs := newFakeFS()
	raw := filepath.Join("/data/raw", layout.Base(key))
	fs.existing[raw] = true

	plan, err := Build(context.Background(), baseRequest(), cat, fs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Len() != 1 || plan.Entries[0].RemoteKey == key {
		t.Fatalf("existing raw file should be excluded, got %+v", plan.Entries)
	}

	delete(fs.existing, raw)
	plan, err = Build(context.Background(), baseRequest(), cat, fs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Len() != 2 {
		t.Errorf("removed raw file should be planned again, got %d entries", plan.Len())
	}
}

func TestBuildDedupProcessed(t *testing.T) {
	cat := newFakeCatalog()
	first := cat.add(date(20, 30))
	second := cat.add(date(20, 40))

	req := baseRequest()
	req.Output = &Output{Prefix: "cmip", Dir: "/data/out"}

	fs := newFakeFS()
	// A raw file on its own does not exclude an entry when processing.
	fs.existing[filepath.Join("/data/raw", layout.Base(first))] = true
	fs.existing["/data/out/cmip_20200807_204000.nc"] = true

	plan, err := Build(context.Background(), req, cat, fs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", plan.Len())
	}

	e := plan.Entries[0]
	if e.RemoteKey != first {
		t.Errorf("RemoteKey = %s, want %s", e.RemoteKey, first)
	}
	if e.RemoteKey == second {
		t.Error("already processed entry should be dropped")
	}
	if e.ProcessedPath != "/data/out/cmip_20200807_203000.nc" {
		t.Errorf("ProcessedPath = %s", e.ProcessedPath)
	}
}

func TestBuildMalformedKeyFailsFast(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(date(20, 30))
	prefix := layout.HourPrefix("16", "ABI-L2-CMIP", "F", date(20, 0))
	cat.objects[prefix] = append(cat.objects[prefix], prefix+"OR_ABI-L2-CMIPF-M6C13_G16_x20202202040000_e0_c0.nc")

	plan, err := Build(context.Background(), baseRequest(), cat, newFakeFS())
	if !errors.Is(err, layout.ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey, got %v", err)
	}
	if plan != nil {
		t.Error("no partial plan should be returned")
	}
}

func TestBuildEmpty(t *testing.T) {
	tests := []struct {
		name string
		req  func() Request
	}{
		{"no remote files", baseRequest},
		{"empty range", func() Request {
			r := baseRequest()
			r.End = r.Start.Add(-time.Hour)
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build(context.Background(), tt.req(), newFakeCatalog(), newFakeFS())
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if plan.Len() != 0 {
				t.Errorf("expected empty plan, got %d entries", plan.Len())
			}
		})
	}
}

func TestBuildListErrorPropagates(t *testing.T) {
	cat := newFakeCatalog()
	cat.listErr = errors.New("connection reset")

	_, err := Build(context.Background(), baseRequest(), cat, newFakeFS())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected list error, got %v", err)
	}
}

func makePlan(n int) *Plan {
	p := &Plan{}
	for i := 0; i < n; i++ {
		p.Entries = append(p.Entries, Entry{RemoteKey: fmt.Sprintf("e%d", i)})
	}
	return p
}

func keysOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RemoteKey
	}
	return out
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name     string
		entries  int
		n        int
		expected [][]string
	}{
		{"even split", 4, 2, [][]string{{"e0", "e1"}, {"e2", "e3"}}},
		{"remainder goes first", 5, 3, [][]string{{"e0", "e1"}, {"e2", "e3"}, {"e4"}}},
		{"more workers than entries", 2, 3, [][]string{{"e0"}, {"e1"}, {}}},
		{"zero workers means one", 3, 0, [][]string{{"e0", "e1", "e2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := makePlan(tt.entries).Chunks(tt.n)
			if len(chunks) != len(tt.expected) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.expected))
			}
			for i, c := range chunks {
				if got := keysOf(c); !reflect.DeepEqual(got, tt.expected[i]) {
					t.Errorf("chunk %d = %v, want %v", i, got, tt.expected[i])
				}
			}
		})
	}
}

func TestCohorts(t *testing.T) {
	cohorts := makePlan(5).Cohorts(2)
	want := [][]string{{"e0", "e3"}, {"e1", "e4"}, {"e2"}}

	if len(cohorts) != len(want) {
		t.Fatalf("got %d cohorts, want %d", len(cohorts), len(want))
	}
	for i, c := range cohorts {
		if got := keysOf(c); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("cohort %d = %v, want %v", i, got, want[i])
		}
	}

	if got := makePlan(0).Cohorts(4); got != nil {
		t.Errorf("empty plan should have no cohorts, got %v", got)
	}
}
