// Package metadata records lineage for processed GOES files.
package metadata

import (
	"time"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

// Record describes one processed file.
type Record struct {
	Satellite       string
	Product         string
	RemoteKey       string
	ObservedAt      time.Time
	ProcessedPath   string
	Transform       string
	ByteSize        int64
	CorrelationID   string
	ProducerVersion string
	ProcessedAt     time.Time
}

// NewRecord builds a lineage record for entry.
func NewRecord(satellite, product string, entry workplan.Entry, transform, correlationID string) Record {
	return Record{
		Satellite:     satellite,
		Product:       product,
		RemoteKey:     entry.RemoteKey,
		ObservedAt:    entry.Time,
		ProcessedPath: entry.ProcessedPath,
		Transform:     transform,
		CorrelationID: correlationID,
		ProcessedAt:   time.Now().UTC(),
	}
}
