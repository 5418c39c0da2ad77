package runner

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors wrapped into Result.Err. Callers match them with errors.Is.
var (
	ErrSpawn      = errors.New("spawn error")
	ErrRead       = errors.New("read error")
	ErrEvaluation = errors.New("evaluation error")
	ErrStopped    = errors.New("script terminated")
	ErrTimedOut   = errors.New("script timed out")
)

// Status is the terminal outcome of a run.
type Status int

const (
	Completed Status = iota
	Terminated
	TimedOut
	Failed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Terminated:
		return "terminated"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name so persisted runs stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "completed":
		*s = Completed
	case "terminated":
		*s = Terminated
	case "timed_out":
		*s = TimedOut
	case "failed":
		*s = Failed
	default:
		return fmt.Errorf("unknown run status %q", b)
	}
	return nil
}

// Result holds the terminal outcome of one run.
type Result struct {
	Status    Status
	Reason    string // set for Failed: "spawn error", "read error", "evaluation error", "panic"
	ExitCode  int    // interpreter exit code (process strategy only)
	Truncated bool   // output exceeded the per-run cap
	Err       error  // underlying cause, wraps one of the sentinel errors
}

// Failure builds a Failed result whose reason is taken from the sentinel
// kind (ErrSpawn, ErrRead, ErrEvaluation).
func Failure(kind error, cause error) Result {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return Result{Status: Failed, Reason: kind.Error(), ExitCode: -1, Err: err}
}

// Interrupted maps the cancellation cause of a run context to its result.
// Deadline causes become TimedOut; any other cancellation is a termination.
func Interrupted(cause error) Result {
	if errors.Is(cause, ErrTimedOut) || errors.Is(cause, context.DeadlineExceeded) {
		return Result{Status: TimedOut, ExitCode: -1, Err: ErrTimedOut}
	}
	return Result{Status: Terminated, ExitCode: -1, Err: ErrStopped}
}

// Source tags where a chunk of output came from.
type Source string

const (
	Stdout Source = "stdout"
	Stderr Source = "stderr"
	Engine Source = "engine"
)

// Chunk is one unit of script output.
type Chunk struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}
