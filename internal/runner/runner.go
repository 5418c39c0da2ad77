// Package runner executes a single script, either by spawning an external
// interpreter process or inside an embedded goja runtime, and streams its
// output to a Sink as it is produced.
package runner

import (
	"context"
	"fmt"
	"sync"
)

// Runner executes one script to completion. Cancelling ctx terminates the
// run; the cancellation cause (ErrStopped or ErrTimedOut) decides whether
// the result is Terminated or TimedOut. Run returns only after every chunk
// has been written to sink.
type Runner interface {
	Run(ctx context.Context, scriptPath string, sink Sink) Result
}

// Sink receives the output of a run. Write may be called from several
// goroutines; order is preserved per Source only.
type Sink interface {
	Write(c Chunk)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Chunk)

func (f SinkFunc) Write(c Chunk) { f(c) }

// Strategy selects a Runner implementation.
type Strategy string

const (
	StrategyProcess  Strategy = "process"
	StrategyEmbedded Strategy = "embedded"
)

// Options configures the Runner built by New.
type Options struct {
	Strategy    Strategy
	Interpreter []string // process strategy: interpreter argv, the script path is appended
	Workspace   string   // process strategy: working directory, empty means the script's directory
	MaxLine     int      // process strategy: longest stdout line in bytes
	MaxOutput   int      // bytes forwarded per run, 0 means unlimited
}

// New returns the Runner for opts.Strategy. An empty strategy selects the
// process runner.
func New(opts Options) (Runner, error) {
	switch opts.Strategy {
	case StrategyProcess, "":
		return &Process{
			Interpreter: opts.Interpreter,
			Workspace:   opts.Workspace,
			MaxLine:     opts.MaxLine,
			MaxOutput:   opts.MaxOutput,
		}, nil
	case StrategyEmbedded:
		return &Embedded{MaxOutput: opts.MaxOutput}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want %q or %q)", opts.Strategy, StrategyProcess, StrategyEmbedded)
	}
}

// limitSink forwards up to limit bytes of chunk text to sink, then silently
// discards the rest.
type limitSink struct {
	mu        sync.Mutex
	sink      Sink
	remaining int
	truncated bool
}

func newLimitSink(sink Sink, limit int) *limitSink {
	return &limitSink{sink: sink, remaining: limit}
}

func (s *limitSink) Write(c Chunk) {
	s.mu.Lock()
	if s.remaining <= 0 {
		s.truncated = true
		s.mu.Unlock()
		return
	}
	if len(c.Text) > s.remaining {
		c.Text = c.Text[:s.remaining]
		s.truncated = true
	}
	s.remaining -= len(c.Text)
	s.mu.Unlock()

	s.sink.Write(c)
}

func (s *limitSink) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// limit wraps sink when max is positive. The returned func reports whether
// anything was dropped.
func limit(sink Sink, max int) (Sink, func() bool) {
	if max <= 0 {
		return sink, func() bool { return false }
	}
	ls := newLimitSink(sink, max)
	return ls, ls.Truncated
}
