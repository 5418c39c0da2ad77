package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/evanw/esbuild/pkg/api"
)

// maxBuffered caps the engine output kept in memory for one run, so a
// script printing in a tight loop cannot exhaust the host before the
// watchdog fires.
const maxBuffered = 16 << 20 // 16 MB

// interruptInterval is how often the watchdog repeats the interrupt until
// evaluation returns. An interrupt raised inside an imported module can
// surface as a catchable error in the importer.
const interruptInterval = 20 * time.Millisecond

// Embedded runs a script inside a goja runtime dedicated to one run.
//
// goja is a pure Go interpreter: Interrupt is checked between bytecode
// instructions and unwinds the evaluation with *goja.InterruptedError, so
// a run can be aborted at any point without corrupting host state.
type Embedded struct {
	MaxOutput int // bytes forwarded per run, 0 means unlimited
}

// Run evaluates the script on a worker goroutine while a watchdog waits for
// ctx to end and interrupts the runtime. Buffered output is flushed to sink
// after the worker and the watchdog have both returned, whatever the
// outcome.
func (e *Embedded) Run(ctx context.Context, scriptPath string, sink Sink) Result {
	out, truncated := limit(sink, e.MaxOutput)

	script, err := filepath.Abs(scriptPath)
	if err == nil {
		_, err = os.Stat(script)
	}
	if err != nil {
		out.Write(Chunk{Source: Engine, Text: err.Error()})
		return Failure(ErrEvaluation, err)
	}

	buf := &outputBuffer{limit: maxBuffered}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := bindConsole(vm, buf); err != nil {
		return Failure(ErrEvaluation, err)
	}
	modules := require.NewRegistry(require.WithLoader(loadModule)).Enable(vm)

	done := make(chan struct{})
	var evalErr error
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				evalErr = fmt.Errorf("engine panic: %v", p)
			}
		}()
		_, evalErr = modules.Require(filepath.ToSlash(script))
	}()

	var watchdog sync.WaitGroup
	watchdog.Add(1)
	go func() {
		defer watchdog.Done()
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		ticker := time.NewTicker(interruptInterval)
		defer ticker.Stop()
		for {
			vm.Interrupt(context.Cause(ctx))
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	<-done
	watchdog.Wait()

	for _, c := range buf.chunks {
		out.Write(c)
	}

	var res Result
	var interrupted *goja.InterruptedError
	switch {
	case evalErr == nil:
		res = Result{Status: Completed}
	case ctx.Err() != nil || errors.As(evalErr, &interrupted):
		res = Interrupted(context.Cause(ctx))
	default:
		out.Write(Chunk{Source: Engine, Text: scriptErrorText(evalErr)})
		res = Failure(ErrEvaluation, evalErr)
	}
	res.Truncated = truncated() || buf.truncated
	return res
}

// loadModule is the require source loader. It reads a module from disk and
// rewrites ES module syntax (import, export) into CommonJS so that goja can
// evaluate it. JSON modules are returned as-is.
func loadModule(path string) ([]byte, error) {
	name := filepath.FromSlash(path)
	fi, err := os.Stat(name)
	if err != nil || fi.IsDir() {
		return nil, require.ModuleFileDoesNotExistError
	}
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(name) == ".json" {
		return src, nil
	}

	res := api.Transform(string(src), api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Sourcefile: name,
	})
	if len(res.Errors) > 0 {
		return nil, transformError(res.Errors)
	}
	return res.Code, nil
}

// transformError renders esbuild diagnostics as "file:line:col: text".
func transformError(msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if loc := m.Location; loc != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column+1, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return errors.New(strings.Join(lines, "\n"))
}

// scriptErrorText renders a goja exception with its stack position.
func scriptErrorText(err error) string {
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		return jsErr.String()
	}
	return err.Error()
}

// outputBuffer collects the lines emitted by one run. It is written only by
// the evaluation goroutine and read after that goroutine has finished.
type outputBuffer struct {
	chunks    []Chunk
	size      int
	limit     int
	truncated bool
}

func (b *outputBuffer) add(src Source, line string) {
	if b.size+len(line) > b.limit {
		b.truncated = true
		return
	}
	b.size += len(line)
	b.chunks = append(b.chunks, Chunk{Source: src, Text: line})
}

// bindConsole installs print() and console.* on vm, all writing to buf.
// console.warn and console.error are tagged as stderr.
func bindConsole(vm *goja.Runtime, buf *outputBuffer) error {
	emitter := func(src Source) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			buf.add(src, formatArgs(vm, call.Arguments))
			return goja.Undefined()
		}
	}

	if err := vm.Set("print", emitter(Stdout)); err != nil {
		return fmt.Errorf("failed to register print: %w", err)
	}

	console := vm.NewObject()
	for name, src := range map[string]Source{
		"log":   Stdout,
		"info":  Stdout,
		"debug": Stdout,
		"warn":  Stderr,
		"error": Stderr,
	} {
		if err := console.Set(name, emitter(src)); err != nil {
			return fmt.Errorf("failed to register console.%s: %w", name, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to register console: %w", err)
	}
	return nil
}

// formatArgs joins call arguments with spaces. Strings are printed as-is,
// other objects through JSON.stringify.
func formatArgs(vm *goja.Runtime, args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(vm, arg)
	}
	return strings.Join(parts, " ")
}

func formatValue(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if s, ok := v.Export().(string); ok {
		return s
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	switch obj.ClassName() {
	case "Function", "Error":
		return v.String()
	}

	json := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(json.Get("stringify"))
	if !ok {
		return v.String()
	}
	s, err := stringify(json, v)
	if err != nil || goja.IsUndefined(s) {
		return v.String()
	}
	return s.String()
}
