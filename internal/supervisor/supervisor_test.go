package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/runner"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// messages records every notification in order.
type messages struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (m *messages) Notify(msg notify.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *messages) All() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.msgs...)
}

func (m *messages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// Console returns the text of console info and error messages.
func (m *messages) Console() []string {
	var out []string
	for _, msg := range m.All() {
		if msg.Container == notify.Console && msg.Action == notify.None {
			out = append(out, msg.Text())
		}
	}
	return out
}

// Toasts returns the toast messages.
func (m *messages) Toasts() []notify.Message {
	var out []notify.Message
	for _, msg := range m.All() {
		if msg.Container == notify.Toast {
			out = append(out, msg)
		}
	}
	return out
}

// scripts are the programs the property suite runs, written for one
// strategy.
type scripts struct {
	hello   string // prints "hello" once
	hello2  string // prints "hello" after about a second of work
	loop    string // never terminates, prints nothing
	partial string // prints "one" and "two", then never terminates
	failing string // fails with an error the strategy reports as Failed
}

type strategy struct {
	name     string
	ext      string
	newRun   func() runner.Runner
	failRun  func() runner.Runner // runner used with scripts.failing
	programs scripts
}

func strategies() []strategy {
	return []strategy{
		{
			name:    "process",
			ext:     ".sh",
			newRun:  func() runner.Runner { return &runner.Process{Interpreter: []string{"sh"}} },
			failRun: func() runner.Runner { return &runner.Process{Interpreter: []string{"no-such-interpreter-4c1f"}} },
			programs: scripts{
				hello:   "echo hello\n",
				hello2:  "sleep 1\necho hello\n",
				loop:    "while :; do :; done\n",
				partial: "echo one\necho two\nwhile :; do :; done\n",
				failing: "echo unreachable\n",
			},
		},
		{
			name:    "embedded",
			ext:     ".js",
			newRun:  func() runner.Runner { return &runner.Embedded{} },
			failRun: func() runner.Runner { return &runner.Embedded{} },
			programs: scripts{
				hello:   "console.log('hello')\n",
				hello2:  "const end = Date.now() + 1000\nwhile (Date.now() < end) {}\nconsole.log('hello')\n",
				loop:    "for (;;) {}\n",
				partial: "console.log('one')\nconsole.log('two')\nfor (;;) {}\n",
				failing: "throw new Error('boom')\n",
			},
		},
	}
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newSupervisor(r runner.Runner, timeout time.Duration) (*Supervisor, *messages) {
	msgs := &messages{}
	return New(Options{Runner: r, Sink: msgs, Timeout: timeout}), msgs
}

func wait(t *testing.T, s *Supervisor) *report.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := s.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func TestSupervisor(t *testing.T) {
	for _, st := range strategies() {
		t.Run(st.name, func(t *testing.T) {
			if st.name == "process" && runtime.GOOS == "windows" {
				t.Skip("process scripts need sh")
			}
			t.Run("Hello", func(t *testing.T) { testHello(t, st) })
			t.Run("StateResetForEveryOutcome", func(t *testing.T) { testStateReset(t, st) })
			t.Run("RejectWhileRunning", func(t *testing.T) { testRejectWhileRunning(t, st) })
			t.Run("ConcurrentStarts", func(t *testing.T) { testConcurrentStarts(t, st) })
			t.Run("StopTerminates", func(t *testing.T) { testStop(t, st) })
			t.Run("TimeoutKeepsEarlierOutput", func(t *testing.T) { testTimeout(t, st) })
			t.Run("LoopReclaimed", func(t *testing.T) { testLoopReclaimed(t, st) })
			t.Run("Failure", func(t *testing.T) { testFailure(t, st) })
		})
	}
}

func testHello(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.newRun(), 0)
	path := writeScript(t, "ok"+st.ext, st.programs.hello)

	id, ok := s.Start(path)
	require.True(t, ok)
	require.NotEmpty(t, id)

	run := wait(t, s)
	require.Equal(t, id, run.ID)
	require.Equal(t, runner.Completed, run.Status)

	require.Equal(t, []notify.Message{
		notify.ConsoleClear(),
		notify.ConsoleInfo("hello"),
		notify.ToastSuccess("script completed"),
	}, msgs.All())
	require.Equal(t, RunState{}, s.State())
	require.Empty(t, s.Current())
}

func testStateReset(t *testing.T, st strategy) {
	cases := []struct {
		name   string
		r      runner.Runner
		script string
		stop   bool
		want   runner.Status
	}{
		{"completed", st.newRun(), st.programs.hello, false, runner.Completed},
		{"timed out", st.newRun(), st.programs.loop, false, runner.TimedOut},
		{"terminated", st.newRun(), st.programs.loop, true, runner.Terminated},
		{"failed", st.failRun(), st.programs.failing, false, runner.Failed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, msgs := newSupervisor(tc.r, 300*time.Millisecond)
			_, ok := s.Start(writeScript(t, "s"+st.ext, tc.script))
			require.True(t, ok)
			if tc.stop {
				s.Stop()
			}

			run := wait(t, s)
			require.Equal(t, tc.want, run.Status, run.Error)
			require.Equal(t, RunState{}, s.State())

			// clear first, exactly one toast, and it comes last.
			all := msgs.All()
			require.Equal(t, notify.ConsoleClear(), all[0])
			require.Len(t, msgs.Toasts(), 1)
			require.Equal(t, notify.Toast, all[len(all)-1].Container)
		})
	}
}

func testRejectWhileRunning(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.newRun(), 5*time.Second)
	_, ok := s.Start(writeScript(t, "loop"+st.ext, st.programs.loop))
	require.True(t, ok)

	before := s.State()
	current := s.Current()
	for range 5 {
		id, ok := s.Start(writeScript(t, "ok"+st.ext, st.programs.hello))
		require.False(t, ok)
		require.Empty(t, id)
		require.Equal(t, before, s.State())
		require.Equal(t, current, s.Current())
	}

	s.Stop()
	run := wait(t, s)
	require.Equal(t, runner.Terminated, run.Status)
	require.Equal(t, current, run.ID)
	require.NotContains(t, msgs.Console(), "hello")

	toasts := msgs.Toasts()
	require.Len(t, toasts, 6)
	for _, m := range toasts[:5] {
		require.Equal(t, notify.ToastWarn(BusyMessage), m)
	}
	require.Equal(t, notify.ToastWarn("script terminated"), toasts[5])
}

func testConcurrentStarts(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.newRun(), 5*time.Second)
	ok1 := writeScript(t, "ok"+st.ext, st.programs.hello2)
	ok2 := writeScript(t, "ok2"+st.ext, st.programs.hello2)

	var (
		wg       sync.WaitGroup
		accepted [2]bool
		start    = make(chan struct{})
	)
	for i, p := range []string{ok1, ok2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, accepted[i] = s.Start(p)
		}()
	}
	close(start)
	wg.Wait()

	require.NotEqual(t, accepted[0], accepted[1], "exactly one Start must be accepted")

	run := wait(t, s)
	require.Equal(t, runner.Completed, run.Status)
	require.Equal(t, []string{"hello"}, msgs.Console())
	require.Contains(t, msgs.Toasts(), notify.ToastWarn(BusyMessage))
}

func testStop(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.newRun(), 5*time.Second)
	_, ok := s.Start(writeScript(t, "loop"+st.ext, st.programs.partial))
	require.True(t, ok)

	s.Stop()
	s.Stop() // idempotent

	run := wait(t, s)
	require.Equal(t, runner.Terminated, run.Status)
	require.Equal(t, RunState{}, s.State())

	// Nothing arrives after the terminal toast.
	n := msgs.Len()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, n, msgs.Len())
	all := msgs.All()
	require.Equal(t, notify.ToastWarn("script terminated"), all[len(all)-1])
}

func testTimeout(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.newRun(), 500*time.Millisecond)
	_, ok := s.Start(writeScript(t, "partial"+st.ext, st.programs.partial))
	require.True(t, ok)

	run := wait(t, s)
	require.Equal(t, runner.TimedOut, run.Status)
	require.Equal(t, []string{"one", "two"}, msgs.Console())
	require.Equal(t, []string{"one", "two"}, texts(run.Output))
	require.Equal(t, []notify.Message{notify.ToastWarn("script timed out")}, msgs.Toasts())
}

func testLoopReclaimed(t *testing.T, st strategy) {
	s, _ := newSupervisor(st.newRun(), 300*time.Millisecond)
	_, ok := s.Start(writeScript(t, "loop"+st.ext, st.programs.loop))
	require.True(t, ok)

	began := time.Now()
	run := wait(t, s)
	require.Equal(t, runner.TimedOut, run.Status)
	require.Less(t, time.Since(began), 5*time.Second)
	// goleak in TestMain checks that no goroutine survives.
}

func testFailure(t *testing.T, st strategy) {
	s, msgs := newSupervisor(st.failRun(), time.Second)
	_, ok := s.Start(writeScript(t, "bad"+st.ext, st.programs.failing))
	require.True(t, ok)

	run := wait(t, s)
	require.Equal(t, runner.Failed, run.Status)
	require.NotEmpty(t, run.Reason)

	toasts := msgs.Toasts()
	require.Len(t, toasts, 1)
	require.Equal(t, notify.Error, toasts[0].Type)
	require.NotContains(t, msgs.Console(), "unreachable")
}

func texts(chunks []runner.Chunk) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, c.Text)
	}
	return out
}

func TestSupervisor_StopIdle(t *testing.T) {
	s, msgs := newSupervisor(&runner.Embedded{}, 0)
	s.Stop()
	s.Stop()
	require.Equal(t, RunState{}, s.State())
	require.Zero(t, msgs.Len())

	run, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Nil(t, run)
}

// panicRunner panics inside Run.
type panicRunner struct{}

func (panicRunner) Run(context.Context, string, runner.Sink) runner.Result {
	panic("boom")
}

func TestSupervisor_RunnerPanic(t *testing.T) {
	s, msgs := newSupervisor(panicRunner{}, 0)
	_, ok := s.Start("x.js")
	require.True(t, ok)

	run := wait(t, s)
	require.Equal(t, runner.Failed, run.Status)
	require.Equal(t, ReasonPanic, run.Reason)
	require.Contains(t, run.Error, "boom")
	require.Equal(t, RunState{}, s.State())
	require.Equal(t, notify.Error, msgs.Toasts()[0].Type)

	// The supervisor accepts new work afterwards.
	_, ok = s.Start("y.js")
	require.True(t, ok)
	wait(t, s)
}

// stubbornRunner ignores cancellation and completes when released.
type stubbornRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *stubbornRunner) Run(_ context.Context, _ string, sink runner.Sink) runner.Result {
	close(r.started)
	<-r.release
	sink.Write(runner.Chunk{Source: runner.Stdout, Text: "late"})
	return runner.Result{Status: runner.Completed}
}

func TestSupervisor_StopThenCompletedIsTerminated(t *testing.T) {
	r := &stubbornRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, msgs := newSupervisor(r, 5*time.Second)
	_, ok := s.Start("x.js")
	require.True(t, ok)

	<-r.started
	s.Stop()
	close(r.release)

	run := wait(t, s)
	require.Equal(t, runner.Terminated, run.Status)
	require.Equal(t, notify.ToastWarn("script terminated"), msgs.Toasts()[0])
}

// blockingRunner returns only when its context ends.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ string, _ runner.Sink) runner.Result {
	<-ctx.Done()
	return runner.Interrupted(context.Cause(ctx))
}

func TestSupervisor_WaitHonoursContext(t *testing.T) {
	s, _ := newSupervisor(blockingRunner{}, 5*time.Second)
	_, ok := s.Start("x.js")
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	s.Stop()
	require.Equal(t, runner.Terminated, wait(t, s).Status)
}

func TestSupervisor_SavesRuns(t *testing.T) {
	store := report.NewLRUStore(2, report.Discard)
	s := New(Options{Runner: blockingRunner{}, Store: store, Strategy: "embedded", Timeout: 50 * time.Millisecond})

	id, ok := s.Start("x.js")
	require.True(t, ok)
	wait(t, s)

	got, err := store.Load(id)
	require.NoError(t, err)
	require.Equal(t, runner.TimedOut, got.Status)
	require.Equal(t, "embedded", got.Strategy)
	require.Equal(t, "x.js", got.Script)
}

func TestTerminal(t *testing.T) {
	require.Equal(t, notify.ToastSuccess("script completed (exit code 3)"),
		terminal(runner.Result{Status: runner.Completed, ExitCode: 3}))
	require.Equal(t, notify.ToastError("spawn error: no such file"),
		terminal(runner.Failure(runner.ErrSpawn, errString("no such file"))))
	require.Equal(t, notify.ToastError("script failed: panic"),
		terminal(runner.Result{Status: runner.Failed, Reason: ReasonPanic}))
}

type errString string

func (e errString) Error() string { return string(e) }
