// Package watch re-runs a script when it is saved.
//
// The script's directory is watched rather than the file itself so that
// editors which save by writing a temp file and renaming it over the script
// are still seen. Events within the debounce window are coalesced into one
// callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/foward955/runner/internal/logging"
	"github.com/foward955/runner/internal/report"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Script is the file whose changes trigger OnChange.
	Script string

	// Debounce is the quiet period after the last event before OnChange
	// fires. Zero or negative values fall back to defaultDebounce.
	Debounce time.Duration

	// OnChange is called from Run's goroutine, so events arriving while it
	// runs are coalesced into the next call.
	OnChange func(ctx context.Context) error

	Logger *slog.Logger
}

// Watcher monitors one script. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	script   string
	debounce time.Duration
	log      *slog.Logger
}

// New resolves the script path and starts watching its directory.
func New(cfg Config) (*Watcher, error) {
	script, err := filepath.Abs(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve script path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(script)); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("watch: add directory %q: %w", filepath.Dir(script), err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		script:   script,
		debounce: debounce,
		log:      log.With("script", script),
	}, nil
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and an error if the fsnotify channels close.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("closing fsnotify watcher", "err", err)
		}
	}()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if !w.relevant(evt) {
				continue
			}
			w.log.Debug("script changed", "op", evt.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			if w.cfg.OnChange == nil {
				continue
			}
			if err := w.cfg.OnChange(ctx); err != nil {
				w.log.Warn("re-run failed", "err", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			w.log.Warn("fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.script {
		return false
	}
	return evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create)
}

// Supervisor is the part of supervisor.Supervisor that Rerun drives.
type Supervisor interface {
	Start(scriptPath string) (runID string, accepted bool)
	Stop()
	Wait(ctx context.Context) (*report.Run, error)
}

// Rerun returns an OnChange callback that stops the active run, waits for
// it to be reported and starts script again.
func Rerun(sup Supervisor, script string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sup.Stop()
		if _, err := sup.Wait(ctx); err != nil {
			return err
		}
		if _, ok := sup.Start(script); !ok {
			return errors.New("supervisor busy")
		}
		return nil
	}
}
