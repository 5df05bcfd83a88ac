// Package workplan builds the ordered table of pending remote files for one
// query and partitions it for execution.
package workplan

import "time"

// Entry is one remote file selected for transfer or processing.
type Entry struct {
	RemoteKey     string    `json:"remote_key"`
	RawPath       string    `json:"raw_path"`
	ProcessedPath string    `json:"processed_path,omitempty"` // empty when processing is disabled
	Time          time.Time `json:"time"`
}

// Plan is a time-ordered list of entries.
type Plan struct {
	Entries []Entry `json:"entries"`
}

// Len returns the number of entries.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// Chunks splits the plan into n contiguous chunks of near-equal size.
// When the entries do not divide evenly the first len%n chunks get one
// extra entry. Chunks may be empty when n exceeds the plan length.
func (p *Plan) Chunks(n int) [][]Entry {
	if n < 1 {
		n = 1
	}

	total := p.Len()
	base, extra := total/n, total%n

	chunks := make([][]Entry, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks[i] = p.Entries[start : start+size]
		start += size
	}
	return chunks
}

// Cohorts regroups Chunks(n) by position: cohort i holds entry i of every
// chunk long enough to have one. Cohort i must complete before cohort i+1
// starts.
func (p *Plan) Cohorts(n int) [][]Entry {
	chunks := p.Chunks(n)
	if len(chunks) == 0 || len(chunks[0]) == 0 {
		return nil
	}

	cohorts := make([][]Entry, len(chunks[0]))
	for i := range cohorts {
		for _, chunk := range chunks {
			if i < len(chunk) {
				cohorts[i] = append(cohorts[i], chunk[i])
			}
		}
	}
	return cohorts
}
