// Package report provides persistence and retrieval of finished runs.
// Records are stored as typed structs and can be filtered by output source.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/foward955/runner/internal/runner"
)

// Store persists and retrieves run records.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Run holds everything known about one finished run.
type Run struct {
	ID        string         `json:"id"`
	Script    string         `json:"script"`
	Strategy  string         `json:"strategy"`
	Status    runner.Status  `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	ExitCode  int            `json:"exit_code"`
	Truncated bool           `json:"truncated,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Output    []runner.Chunk `json:"output,omitempty"`
}

// NewRun builds a record from a runner result and the collected output.
func NewRun(id, script, strategy string, started time.Time, res runner.Result, output []runner.Chunk) *Run {
	r := &Run{
		ID:        id,
		Script:    script,
		Strategy:  strategy,
		Status:    res.Status,
		Reason:    res.Reason,
		ExitCode:  res.ExitCode,
		Truncated: res.Truncated,
		StartedAt: started,
		EndedAt:   time.Now(),
		Output:    output,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// BySource returns the chunks emitted by src, in order. An empty source
// returns all output.
func BySource(r *Run, src runner.Source) []runner.Chunk {
	if src == "" {
		return r.Output
	}
	var out []runner.Chunk
	for _, c := range r.Output {
		if c.Source == src {
			out = append(out, c)
		}
	}
	return out
}

// ErrNotFound is returned by stores that hold no record for a run ID.
var ErrNotFound = errors.New("run not found")

// Discard is a Store that keeps nothing.
var Discard Store = discardStore{}

type discardStore struct{}

func (discardStore) Save(*Run) error { return nil }

func (discardStore) Load(runID string) (*Run, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
}
