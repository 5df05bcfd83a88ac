// Package exitcode defines the worker process exit statuses.
package exitcode

const (
	Success            = 0
	ConfigError        = 1
	RemoteIOError      = 2
	TransformError     = 3
	TransformTolerated = 4
	FetchTolerated     = 5
	InternalError      = 6

	// Skipped means the processed file already existed; nothing was done.
	Skipped = 7
)

// Class buckets an exit code for the run log.
type Class int

const (
	ClassSuccess Class = iota
	ClassWarning
	ClassError
)

// Classify maps a worker exit code to success, warning or error.
func Classify(code int) Class {
	switch code {
	case Success, Skipped:
		return ClassSuccess
	case TransformTolerated, FetchTolerated:
		return ClassWarning
	default:
		return ClassError
	}
}

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassWarning:
		return "warning"
	default:
		return "error"
	}
}
