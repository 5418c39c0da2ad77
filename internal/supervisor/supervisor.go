// Package supervisor enforces single-flight script execution. It owns the
// Run State, launches the configured runner on its own goroutine, turns the
// runner's output into console notifications, and reports exactly one
// terminal toast per run.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foward955/runner/internal/config"
	"github.com/foward955/runner/internal/logging"
	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/runner"
	"github.com/google/uuid"
)

// BusyMessage is the warning toast emitted when Start is called while a run
// is active.
const BusyMessage = "script is running, please wait or stop old task"

// ReasonPanic is the Result.Reason of a run whose runner panicked.
const ReasonPanic = "panic"

// ErrPanic wraps the value recovered from a panicking runner.
var ErrPanic = errors.New("runner panicked")

// RunState is the supervisor's view of the active run. CancelRequested is
// only ever true while Running is; both are cleared together when the run
// ends. The zero value is idle.
type RunState struct {
	Running         bool `json:"running"`
	CancelRequested bool `json:"cancel_requested"`
}

// Options configures a Supervisor. Only Runner is required.
type Options struct {
	Runner   runner.Runner
	Strategy string        // recorded on run records
	Sink     notify.Sink   // defaults to notify.Discard
	Store    report.Store  // defaults to report.Discard
	Timeout  time.Duration // per-run deadline, defaults to config.DefaultTimeout
	Logger   *slog.Logger  // defaults to a discarding logger
}

// Supervisor runs at most one script at a time.
type Supervisor struct {
	runner   runner.Runner
	strategy string
	sink     notify.Sink
	store    report.Store
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	state  RunState
	cancel context.CancelCauseFunc
	runID  string
	done   chan struct{} // closed once the current or latest run is fully reported
	last   *report.Run
}

// New creates an idle Supervisor.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		runner:   opts.Runner,
		strategy: opts.Strategy,
		sink:     opts.Sink,
		store:    opts.Store,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
	if s.sink == nil {
		s.sink = notify.Discard
	}
	if s.store == nil {
		s.store = report.Discard
	}
	if s.timeout <= 0 {
		s.timeout = config.DefaultTimeout
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// Start launches scriptPath unless a run is already active. A rejected call
// emits the busy warning and leaves the active run untouched.
func (s *Supervisor) Start(scriptPath string) (runID string, accepted bool) {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		s.sink.Notify(notify.ToastWarn(BusyMessage))
		return "", false
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	s.state = RunState{Running: true}
	s.cancel = cancel
	s.runID = id
	s.done = done
	s.mu.Unlock()

	ctx = logging.WithAttrs(ctx, slog.String("run", id), slog.String("script", scriptPath))
	s.log.InfoContext(ctx, "run started", "strategy", s.strategy, "timeout", s.timeout)

	s.sink.Notify(notify.ConsoleClear())
	go s.run(ctx, cancel, id, scriptPath, done)
	return id, true
}

// Stop asks the active run to terminate and returns without waiting. It is
// a no-op when idle and idempotent while running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		return
	}
	s.state.CancelRequested = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel(runner.ErrStopped)
}

// State returns a snapshot of the Run State.
func (s *Supervisor) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the ID of the active run, or "" when idle.
func (s *Supervisor) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Running {
		return ""
	}
	return s.runID
}

// Last returns the most recently finished run, nil if none has finished.
func (s *Supervisor) Last() *report.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Wait blocks until the active run, if any, has been fully reported and
// returns the most recently finished run.
func (s *Supervisor) Wait(ctx context.Context) (*report.Run, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	return s.Last(), nil
}

func (s *Supervisor) run(ctx context.Context, cancel context.CancelCauseFunc, id, scriptPath string, done chan struct{}) {
	started := time.Now()
	out := newOutput(s.sink)

	var res runner.Result
	defer func() {
		if p := recover(); p != nil {
			s.log.ErrorContext(ctx, "runner panicked", "panic", p)
			res = runner.Result{
				Status:   runner.Failed,
				Reason:   ReasonPanic,
				ExitCode: -1,
				Err:      fmt.Errorf("%w: %v", ErrPanic, p),
			}
		}
		cancel(nil)
		s.finish(ctx, id, scriptPath, started, res, out, done)
	}()

	runCtx, stop := context.WithTimeoutCause(ctx, s.timeout, runner.ErrTimedOut)
	defer stop()
	res = s.runner.Run(runCtx, scriptPath, out)
}

// finish resets the Run State, records the run and emits its terminal
// toast. It runs exactly once per run, after the runner has returned.
func (s *Supervisor) finish(ctx context.Context, id, scriptPath string, started time.Time, res runner.Result, out *output, done chan struct{}) {
	s.mu.Lock()
	if s.state.CancelRequested && res.Status == runner.Completed {
		exit := res.ExitCode
		res = runner.Interrupted(runner.ErrStopped)
		res.ExitCode = exit
	}
	s.state = RunState{}
	s.cancel = nil
	rec := report.NewRun(id, scriptPath, s.strategy, started, res, out.Chunks())
	s.last = rec
	s.mu.Unlock()

	if err := s.store.Save(rec); err != nil {
		s.log.WarnContext(ctx, "saving run failed", "err", err)
	}

	attrs := []any{"status", res.Status.String(), "exit_code", res.ExitCode, "duration", rec.Duration()}
	if res.Err != nil {
		attrs = append(attrs, "err", res.Err)
	}
	s.log.InfoContext(ctx, "run finished", attrs...)

	s.sink.Notify(terminal(res))
	close(done)
}

// terminal builds the toast reporting res.
func terminal(res runner.Result) notify.Message {
	switch res.Status {
	case runner.Completed:
		if res.ExitCode != 0 {
			return notify.ToastSuccess(fmt.Sprintf("script completed (exit code %d)", res.ExitCode))
		}
		return notify.ToastSuccess("script completed")
	case runner.Terminated:
		return notify.ToastWarn(runner.ErrStopped.Error())
	case runner.TimedOut:
		return notify.ToastWarn(runner.ErrTimedOut.Error())
	default:
		if res.Err != nil {
			return notify.ToastError(res.Err.Error())
		}
		return notify.ToastError("script failed: " + res.Reason)
	}
}
