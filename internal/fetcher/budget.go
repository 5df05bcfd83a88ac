package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// MaxUsagePercent is the projected disk usage above which Download refuses
// to start.
const MaxUsagePercent = 90.0

// ErrNothingToDo is returned by EstimateDiskUsage for an empty workplan.
var ErrNothingToDo = errors.New("nothing to do")

// LowDiskSpaceError reports a download that would fill the staging volume.
type LowDiskSpaceError struct {
	PercentUsedAfter float64
	BytesNeeded      int64
}

func (e *LowDiskSpaceError) Error() string {
	return fmt.Sprintf("download would bring disk usage to %.0f%% (limit %.0f%%); set IgnoreLowDiskSpace to proceed anyway",
		e.PercentUsedAfter, MaxUsagePercent)
}

// Estimate is the projected cost of downloading a workplan.
type Estimate struct {
	Files            int
	SampledFiles     int
	BytesNeeded      int64
	UsedBytes        uint64
	TotalBytes       uint64
	PercentFreeAfter float64
	Empty            bool
}

// PercentUsedAfter is 100 - PercentFreeAfter.
func (e Estimate) PercentUsedAfter() float64 {
	return 100 - e.PercentFreeAfter
}

// EstimateDiskUsage samples remote object sizes from the workplan and
// projects free space on the staging volume after the download.
func (f *Fetcher) EstimateDiskUsage(ctx context.Context) (Estimate, error) {
	plan, err := f.Workplan(ctx)
	if err != nil {
		return Estimate{}, err
	}
	return f.estimate(ctx, plan)
}

func (f *Fetcher) estimate(ctx context.Context, plan *workplan.Plan) (Estimate, error) {
	n := plan.Len()
	if n == 0 {
		return Estimate{Empty: true}, ErrNothingToDo
	}

	stride := n / f.opts.SampleSize
	if stride < 1 {
		stride = 1
	}

	var total int64
	sampled := 0
	for i := 0; i < n; i += stride {
		size, err := f.catalog.SizeOf(ctx, plan.Entries[i].RemoteKey)
		if err != nil {
			f.opts.Metrics.IncSourceErrors(f.labels, "size")
			return Estimate{}, fmt.Errorf("size sample: %w", err)
		}
		total += size
		sampled++
	}
	needed := int64(float64(total) / float64(sampled) * float64(n))

	usage, err := f.fs.Usage(f.volumePath())
	if err != nil {
		return Estimate{}, err
	}
	if usage.Total == 0 {
		return Estimate{}, fmt.Errorf("volume of %s reports zero capacity", f.query.StagingDir)
	}

	return Estimate{
		Files:            n,
		SampledFiles:     sampled,
		BytesNeeded:      needed,
		UsedBytes:        usage.Used,
		TotalBytes:       usage.Total,
		PercentFreeAfter: 100 - 100*(float64(usage.Used)+float64(needed))/float64(usage.Total),
	}, nil
}

// volumePath returns the staging directory or its nearest existing parent.
func (f *Fetcher) volumePath() string {
	dir := filepath.Clean(f.query.StagingDir)
	for !f.fs.Exists(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}
