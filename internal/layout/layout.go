// Package layout maps GOES query parameters to object-store key prefixes and
// decodes observation timestamps embedded in GOES file names.
package layout

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrMalformedKey is matched by every MalformedKeyError.
var ErrMalformedKey = errors.New("malformed key")

// MalformedKeyError reports a key whose basename does not follow the
// OR_<product>_<satellite>_s<start>_e<end>_c<created>.nc convention.
type MalformedKeyError struct {
	Key    string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q: %s", e.Key, e.Reason)
}

func (e *MalformedKeyError) Is(target error) bool {
	return target == ErrMalformedKey
}

// Start token layout: s + YYYY + DDD + HHMMSS + tenths of a second.
// Example: OR_ABI-L2-AOD-M6_G16_s20202202000000_e20202202009000_c20202202014000.nc
const startTokenLayout = "2006002150405"

// Bucket returns the public bucket name for a satellite number ("16" -> "noaa-goes16").
func Bucket(satellite string) string {
	return "noaa-goes" + satellite
}

// Prefix returns the hour folder for a product and scan sector:
// <bucket>/<product><sector>/<year>/<doy:03d>/<hour:02d>/
func Prefix(satellite, product, sector string, year, dayOfYear, hour int) string {
	return fmt.Sprintf("%s/%s%s/%d/%03d/%02d/",
		Bucket(satellite), product, sector, year, dayOfYear, hour)
}

// HourPrefix returns the hour folder containing t (interpreted in UTC).
func HourPrefix(satellite, product, sector string, t time.Time) string {
	t = t.UTC()
	return Prefix(satellite, product, sector, t.Year(), t.YearDay(), t.Hour())
}

// ProductPrefix returns the folder holding all years of a product and sector.
func ProductPrefix(satellite, product, sector string) string {
	return fmt.Sprintf("%s/%s%s/", Bucket(satellite), product, sector)
}

// DecodeTimestamp extracts the scan start time from a remote key.
// The third-from-last underscore token of the basename must start with 's';
// the trailing tenths-of-second digit is dropped.
func DecodeTimestamp(key string) (time.Time, error) {
	base := Base(key)
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return time.Time{}, &MalformedKeyError{Key: key, Reason: "fewer than three underscore-delimited tokens"}
	}

	token := parts[len(parts)-3]
	if !strings.HasPrefix(token, "s") {
		return time.Time{}, &MalformedKeyError{Key: key, Reason: fmt.Sprintf("token %q should start with s", token)}
	}
	if len(token) < 2 {
		return time.Time{}, &MalformedKeyError{Key: key, Reason: fmt.Sprintf("token %q is too short", token)}
	}

	digits := token[1 : len(token)-1]
	if len(digits) != len(startTokenLayout) {
		return time.Time{}, &MalformedKeyError{Key: key, Reason: fmt.Sprintf("token %q should carry 13 digits before the tenths", token)}
	}

	ts, err := time.ParseInLocation(startTokenLayout, digits, time.UTC)
	if err != nil {
		return time.Time{}, &MalformedKeyError{Key: key, Reason: err.Error()}
	}
	return ts, nil
}

// ProcessedName returns the output file name for a processed scan:
// <prefix>_<YYYYMMDD>_<HHMMSS>.nc
func ProcessedName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.nc", prefix, t.UTC().Format("20060102_150405"))
}

// Split separates "bucket/key/parts" into the bucket name and the key inside it.
func Split(p string) (bucket, key string) {
	p = strings.TrimPrefix(p, "/")
	bucket, key, _ = strings.Cut(p, "/")
	return bucket, key
}

// Join builds a full path from a bucket and a key.
func Join(bucket, key string) string {
	return bucket + "/" + strings.TrimPrefix(key, "/")
}

// Base returns the last element of a remote path.
func Base(p string) string {
	return path.Base(strings.TrimSuffix(p, "/"))
}
