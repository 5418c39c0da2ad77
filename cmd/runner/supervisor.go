package main

import (
	"fmt"
	"path/filepath"

	"github.com/foward955/runner/internal/files"
	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/runner"
	"github.com/foward955/runner/internal/supervisor"
)

// newSupervisor builds the runner, history store and supervisor described
// by the loaded config.
func newSupervisor(sink notify.Sink) (*supervisor.Supervisor, *report.LRUStore, error) {
	r, err := runner.New(runner.Options{
		Strategy:    runner.Strategy(cfg.Strategy()),
		Interpreter: cfg.Interpreter(),
		MaxLine:     cfg.MaxLine(),
		MaxOutput:   cfg.MaxOutputBytes(),
	})
	if err != nil {
		return nil, nil, err
	}

	runsDir := cfg.RunsDir
	if runsDir != "" && !filepath.IsAbs(runsDir) {
		runsDir = filepath.Join(cfgRoot, runsDir)
	}
	store := report.NewLRUStore(cfg.History(), report.NewDiskStore(runsDir))

	sup := supervisor.New(supervisor.Options{
		Runner:   r,
		Strategy: cfg.Strategy(),
		Sink:     sink,
		Store:    store,
		Timeout:  cfg.Timeout(),
		Logger:   logger,
	})
	return sup, store, nil
}

// scriptPath resolves a command-line script argument against the workspace.
func scriptPath(arg string) (string, error) {
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	if !files.Exists(path) {
		return "", fmt.Errorf("script %s does not exist", path)
	}
	return path, nil
}
