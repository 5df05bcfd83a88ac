package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
)

// placeholderYear is a folder present in some product listings that holds no
// real data.
const placeholderYear = "2000"

// Info returns a short human-readable summary of the pending work.
func (f *Fetcher) Info(ctx context.Context) (string, error) {
	est, err := f.EstimateDiskUsage(ctx)
	if errors.Is(err, ErrNothingToDo) {
		return "no files to download, nothing to do", nil
	}
	if err != nil {
		return "", err
	}

	var free uint64
	if after := float64(est.TotalBytes) * est.PercentFreeAfter / 100; after > 0 {
		free = uint64(after)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "files to download: %d\n", est.Files)
	fmt.Fprintf(&b, "estimated size: %s (sampled %d files)\n", humanize.Bytes(uint64(est.BytesNeeded)), est.SampledFiles)
	fmt.Fprintf(&b, "free space after download: %s (%.1f%%)\n", humanize.Bytes(free), est.PercentFreeAfter)
	return b.String(), nil
}

// ProductAvailableSince returns the first day for which the query's product
// and sector has data, from the first real year folder and its first
// day-of-year folder.
func (f *Fetcher) ProductAvailableSince(ctx context.Context) (time.Time, error) {
	prefix := layout.ProductPrefix(f.query.Satellite, f.query.Product, f.query.Sector)

	years, err := f.catalog.ListDirs(ctx, prefix)
	if err != nil {
		return time.Time{}, err
	}

	var yearDir string
	var year int
	for _, dir := range years {
		name := layout.Base(dir)
		if name == placeholderYear {
			continue
		}
		y, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		yearDir, year = dir, y
		break
	}
	if yearDir == "" {
		return time.Time{}, fmt.Errorf("no year folders under %s", prefix)
	}

	days, err := f.catalog.ListDirs(ctx, yearDir)
	if err != nil {
		return time.Time{}, err
	}
	for _, dir := range days {
		doy, err := strconv.Atoi(layout.Base(dir))
		if err != nil || doy < 1 || doy > 366 {
			continue
		}
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1), nil
	}
	return time.Time{}, fmt.Errorf("no day-of-year folders under %s", yearDir)
}
