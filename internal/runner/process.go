package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxLine is the longest stdout line accepted when Process.MaxLine
// is unset.
const DefaultMaxLine = 1 << 20 // 1 MB

// errCancelled stops the stdout reader once the run context has ended.
var errCancelled = errors.New("read cancelled")

// Process runs a script by spawning an external interpreter with the script
// path as its last argument.
type Process struct {
	Interpreter []string // argv prefix, defaults to DefaultInterpreter
	Workspace   string   // working directory, empty means the script's directory
	MaxLine     int      // bytes
	MaxOutput   int      // bytes forwarded per run, 0 means unlimited
}

// Run spawns the interpreter and streams stdout line by line and stderr as
// it arrives. Both readers are joined and the process is reaped before Run
// returns.
func (p *Process) Run(ctx context.Context, scriptPath string, sink Sink) Result {
	argv, err := ResolveInterpreter(p.Interpreter)
	if err != nil {
		return Failure(ErrSpawn, err)
	}

	script, err := filepath.Abs(scriptPath)
	if err != nil {
		return Failure(ErrSpawn, err)
	}

	cmd := exec.Command(argv[0], append(argv[1:], script)...)
	cmd.Dir = p.Workspace
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(script)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Failure(ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Failure(ErrSpawn, err)
	}

	if ctx.Err() != nil {
		return Interrupted(context.Cause(ctx))
	}
	if err := cmd.Start(); err != nil {
		return Failure(ErrSpawn, fmt.Errorf("starting %s: %w", argv[0], err))
	}

	out, truncated := limit(sink, p.MaxOutput)

	// A descendant that left the process group can keep the write ends of
	// the pipes open, so the kill also closes our read ends.
	var once sync.Once
	kill := func() {
		once.Do(func() {
			killProcess(cmd)
			_ = stdout.Close()
			_ = stderr.Close()
		})
	}
	stopKill := context.AfterFunc(ctx, kill)

	var g errgroup.Group
	g.Go(func() error {
		err := p.readLines(ctx, stdout, out)
		if err != nil {
			kill()
		}
		return err
	})
	g.Go(func() error {
		err := readChunks(stderr, out)
		if err != nil {
			kill()
		}
		return err
	})
	readErr := g.Wait()
	killed := !stopKill()
	waitErr := cmd.Wait()

	res := outcome(ctx, killed, readErr, waitErr)
	res.Truncated = truncated()
	return res
}

// outcome maps how a process run ended to its Result. The run counts as
// interrupted only when the context kill fired, so a script that exited on
// its own just before the deadline is still Completed.
func outcome(ctx context.Context, killed bool, readErr, waitErr error) Result {
	if killed {
		return Interrupted(context.Cause(ctx))
	}
	if readErr != nil {
		return Failure(ErrRead, readErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Failure(ErrRead, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	return Result{Status: Completed, ExitCode: exitCode}
}

// readLines forwards complete stdout lines, checking for cancellation
// before each one.
func (p *Process) readLines(ctx context.Context, r io.Reader, sink Sink) error {
	maxLine := p.MaxLine
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return errCancelled
		}
		line := strings.TrimSuffix(scanner.Text(), "\r")
		sink.Write(Chunk{Source: Stdout, Text: strings.ToValidUTF8(line, string(utf8.RuneError))})
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil // closed by kill
		}
		return fmt.Errorf("reading stdout: %w", err)
	}
	return nil
}

// readChunks forwards stderr as it arrives. A rune split across two reads
// is carried over to the next chunk.
func readChunks(r io.Reader, sink Sink) error {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completeRunes(data)
			if cut > 0 {
				sink.Write(Chunk{Source: Stderr, Text: strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError))})
			}
			carry = append([]byte(nil), data[cut:]...)
		}
		if errors.Is(err, io.EOF) {
			if len(carry) > 0 {
				sink.Write(Chunk{Source: Stderr, Text: strings.ToValidUTF8(string(carry), string(utf8.RuneError))})
			}
			return nil
		}
		if errors.Is(err, os.ErrClosed) {
			return nil // closed by kill
		}
		if err != nil {
			return fmt.Errorf("reading stderr: %w", err)
		}
	}
}

// completeRunes returns the length of the prefix of b that does not end in
// a truncated UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
