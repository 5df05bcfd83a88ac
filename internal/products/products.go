// Package products describes the product folders published in the GOES
// buckets.
package products

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/withObsrvr/goes-fetcher/internal/layout"
	"github.com/withObsrvr/goes-fetcher/internal/source"
)

// ReadmeURL documents the bucket layout and the product codes.
const ReadmeURL = "https://docs.opendata.aws/noaa-goes16/cics-readme.html"

var names = map[string]string{
	"ABI-L1b-Rad":    "Advanced Baseline Imager Level 1b Radiances",
	"ABI-L2-ACHA":    "Cloud Top Height",
	"ABI-L2-ACM":     "Clear Sky Mask",
	"ABI-L2-ACTP":    "Cloud Top Phase",
	"ABI-L2-ADP":     "Aerosol Detection",
	"ABI-L2-AOD":     "Aerosol Optical Depth",
	"ABI-L2-CMIP":    "Cloud and Moisture Imagery",
	"ABI-L2-COD":     "Cloud Optical Depth",
	"ABI-L2-CPS":     "Cloud Particle Size",
	"ABI-L2-CTP":     "Cloud Top Pressure",
	"ABI-L2-DMW":     "Derived Motion Winds",
	"ABI-L2-DSI":     "Derived Stability Indices",
	"ABI-L2-DSR":     "Downward Shortwave Radiation",
	"ABI-L2-FDC":     "Fire/Hot Spot Characterization",
	"ABI-L2-LST":     "Land Surface Temperature",
	"ABI-L2-LVMP":    "Legacy Vertical Moisture Profile",
	"ABI-L2-LVTP":    "Legacy Vertical Temperature Profile",
	"ABI-L2-MCMIP":   "Cloud and Moisture Imagery, multiband",
	"ABI-L2-RRQPE":   "Rainfall Rate (Quantitative Precipitation Estimate)",
	"ABI-L2-RSR":     "Reflected Shortwave Radiation Top-Of-Atmosphere",
	"ABI-L2-SST":     "Sea Surface (Skin) Temperature",
	"ABI-L2-TPW":     "Total Precipitable Water",
	"ABI-L2-VAA":     "Volcanic Ash: Detection and Height",
	"GLM-L2-LCFA":    "Geostationary Lightning Mapper Level 2 Lightning Detection",
	"SUVI-L1b-Fe093": "Solar Ultraviolet Imager Fe093 band",
}

// sectorSuffixes are the scan sector letters appended to ABI product folders.
var sectorSuffixes = []string{"C", "F", "M"}

// Name returns the human readable name for a product code. Folder names that
// carry a scan sector suffix resolve to their product.
func Name(code string) (string, bool) {
	if n, ok := names[code]; ok {
		return n, true
	}
	for _, s := range sectorSuffixes {
		if base, ok := strings.CutSuffix(code, s); ok {
			if n, ok := names[base]; ok {
				return n, true
			}
		}
	}
	return "", false
}

// Codes returns the known product codes, sorted.
func Codes() []string {
	out := make([]string, 0, len(names))
	for c := range names {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Availability is the product folder listing of several satellites.
type Availability struct {
	Satellites []string
	Folders    map[string][]string

	// Identical reports whether every satellite lists the same folders.
	Identical bool
}

// Available lists the product folders of every satellite bucket.
func Available(ctx context.Context, catalog source.Catalog, satellites []string) (Availability, error) {
	a := Availability{
		Satellites: satellites,
		Folders:    make(map[string][]string, len(satellites)),
		Identical:  true,
	}

	var first []string
	for i, sat := range satellites {
		dirs, err := catalog.ListDirs(ctx, layout.Bucket(sat)+"/")
		if err != nil {
			return a, fmt.Errorf("list products of GOES-%s: %w", sat, err)
		}
		folders := make([]string, 0, len(dirs))
		for _, d := range dirs {
			folders = append(folders, layout.Base(d))
		}
		slices.Sort(folders)
		a.Folders[sat] = folders

		if i == 0 {
			first = folders
		} else if !slices.Equal(first, folders) {
			a.Identical = false
		}
	}
	return a, nil
}
