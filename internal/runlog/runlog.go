// Package runlog appends one CSV record per parallel cohort.
package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Record is one cohort summary.
type Record struct {
	Time            time.Time
	Errors          int
	Successes       int
	Warnings        int
	SubprocessLabel string
	ServerLabel     string
	Comment         string
}

// Status is 0 when the cohort had no errors and 1 otherwise.
func (r Record) Status() int {
	if r.Errors > 0 {
		return 1
	}
	return 0
}

func (r Record) fields() []string {
	return []string{
		r.Time.UTC().Format(timestampLayout),
		strconv.Itoa(r.Status()),
		strconv.Itoa(r.Errors),
		strconv.Itoa(r.Successes),
		strconv.Itoa(r.Warnings),
		r.SubprocessLabel,
		r.ServerLabel,
		r.Comment,
	}
}

// Log appends records to a file. It never truncates and writes no header.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{path: path}
}

// Hostname is the default server label.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Append writes r as one line.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open run log %s: %w", l.path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(r.fields()); err != nil {
		f.Close()
		return fmt.Errorf("write run log: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush run log: %w", err)
	}
	return f.Close()
}
