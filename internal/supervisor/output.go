package supervisor

import (
	"sync"

	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/runner"
)

// output is the runner.Sink handed to a run. It keeps every chunk for the
// run record and forwards each one as a console line. Engine diagnostics
// are forwarded as console errors.
type output struct {
	sink notify.Sink

	mu     sync.Mutex
	chunks []runner.Chunk
}

func newOutput(sink notify.Sink) *output {
	return &output{sink: sink}
}

func (o *output) Write(c runner.Chunk) {
	o.mu.Lock()
	o.chunks = append(o.chunks, c)
	o.mu.Unlock()

	if c.Source == runner.Engine {
		o.sink.Notify(notify.ConsoleError(c.Text))
		return
	}
	o.sink.Notify(notify.ConsoleInfo(c.Text))
}

// Chunks returns a copy of the chunks written so far.
func (o *output) Chunks() []runner.Chunk {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]runner.Chunk(nil), o.chunks...)
}
