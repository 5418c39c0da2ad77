package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/runner"
	"github.com/foward955/runner/internal/watch"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a script once and print its output",
	Long: `Run a script once and print its output.

Interrupt (Ctrl-C) stops the script. The exit status is 0 only when the
script completed.`,
	Args: cobra.ExactArgs(1),
	RunE: doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch <script>",
	Short: "Run a script and run it again each time it is saved",
	Args:  cobra.ExactArgs(1),
	RunE:  doWatch,
}

func doRun(cmd *cobra.Command, args []string) error {
	path, err := scriptPath(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sup, _, err := newSupervisor(notify.Multi(notify.Writer(os.Stdout), notify.Logger(logger)))
	if err != nil {
		return err
	}

	if _, ok := sup.Start(path); !ok {
		return errors.New("supervisor busy")
	}
	stopOnSignal := context.AfterFunc(ctx, sup.Stop)
	defer stopOnSignal()

	run, err := sup.Wait(context.Background())
	if err != nil {
		return err
	}
	if run.Status != runner.Completed {
		return fmt.Errorf("run %s %s", run.ID, run.Status)
	}
	return nil
}

func doWatch(cmd *cobra.Command, args []string) error {
	path, err := scriptPath(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sup, _, err := newSupervisor(notify.Multi(notify.Writer(os.Stdout), notify.Logger(logger)))
	if err != nil {
		return err
	}
	defer func() {
		sup.Stop()
		_, _ = sup.Wait(context.Background())
	}()

	w, err := watch.New(watch.Config{
		Script:   path,
		Debounce: cfg.WatchDebounce(),
		OnChange: watch.Rerun(sup, path),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sup.Start(path)
	logger.Info("watching for changes", "script", path)
	return w.Run(ctx)
}
