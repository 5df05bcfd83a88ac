// Package query holds the caller-supplied description of one fetch session.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Sectors lists the accepted scan sector codes.
var Sectors = []string{"C", "F", "M", "M1", "M2"}

// ConfigurationError reports a query that cannot be executed as requested.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransformFunc processes one entry. It reads entry.RawPath and writes
// entry.ProcessedPath.
type TransformFunc func(ctx context.Context, entry workplan.Entry) error

// Processing selects whether downloaded files are transformed.
// It is either Disabled or Enabled; a nil Processing means Disabled.
type Processing interface {
	isProcessing()
}

// Disabled leaves raw files in the staging directory.
type Disabled struct{}

// Enabled transforms every raw file into OutputDir and removes the raw copy
// unless RetainRaw is set.
type Enabled struct {
	Transform TransformFunc
	Prefix    string
	OutputDir string
	RetainRaw bool
}

func (Disabled) isProcessing() {}
func (Enabled) isProcessing()  {}

// Query describes one session against the remote store. Fields may be changed
// before the first workplan access; after that the owner must invalidate its
// cached workplan.
type Query struct {
	Satellite  string
	Product    string
	Sector     string
	StagingDir string
	Start      time.Time
	End        time.Time
	Processing Processing
	Verbose    bool
}

// Enabled returns the processing configuration when processing is on.
func (q *Query) Enabled() (Enabled, bool) {
	switch p := q.Processing.(type) {
	case Enabled:
		return p, true
	case *Enabled:
		if p != nil {
			return *p, true
		}
	}
	return Enabled{}, false
}

// Validate checks the query before any remote call is made. A product code
// ending in the sector letter is rejected rather than trimmed.
func (q *Query) Validate() error {
	if q.Satellite == "" {
		return &ConfigurationError{Field: "satellite", Reason: "required"}
	}
	if q.Product == "" {
		return &ConfigurationError{Field: "product", Reason: "required"}
	}
	if !validSector(q.Sector) {
		return &ConfigurationError{
			Field:  "sector",
			Reason: fmt.Sprintf("%q is not one of %s", q.Sector, strings.Join(Sectors, ", ")),
		}
	}
	if strings.HasSuffix(q.Product, q.Sector[:1]) {
		return &ConfigurationError{
			Field: "product",
			Reason: fmt.Sprintf("%q ends with the sector letter %q; pass the product without the sector",
				q.Product, q.Sector[:1]),
		}
	}
	if q.StagingDir == "" {
		return &ConfigurationError{Field: "staging_dir", Reason: "required"}
	}

	switch p := q.Processing.(type) {
	case nil, Disabled, *Disabled:
	case Enabled:
		return validateEnabled(p)
	case *Enabled:
		if p == nil {
			return nil
		}
		return validateEnabled(*p)
	default:
		return &ConfigurationError{Field: "processing", Reason: fmt.Sprintf("unknown mode %T", p)}
	}
	return nil
}

func validateEnabled(p Enabled) error {
	if p.Transform == nil {
		return &ConfigurationError{Field: "processing.transform", Reason: "required"}
	}
	if p.Prefix == "" {
		return &ConfigurationError{Field: "processing.prefix", Reason: "required"}
	}
	if p.OutputDir == "" {
		return &ConfigurationError{Field: "processing.output_dir", Reason: "required"}
	}
	return nil
}

func validSector(s string) bool {
	for _, v := range Sectors {
		if s == v {
			return true
		}
	}
	return false
}

// Request converts the query into a workplan request.
func (q *Query) Request() workplan.Request {
	req := workplan.Request{
		Satellite:  q.Satellite,
		Product:    q.Product,
		Sector:     q.Sector,
		Start:      q.Start,
		End:        q.End,
		StagingDir: q.StagingDir,
	}
	if p, ok := q.Enabled(); ok {
		req.Output = &workplan.Output{Prefix: p.Prefix, Dir: p.OutputDir}
	}
	return req
}
