// Command runner runs one script at a time with a deadline, either through
// an external interpreter or an embedded JavaScript engine.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	runnerpkg "github.com/foward955/runner"
	"github.com/foward955/runner/internal/config"
	"github.com/foward955/runner/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	cfgRoot   string // directory the .runner file was found in, or the workspace
	workspace string
	logger    *slog.Logger

	flagStrategy    string
	flagTimeout     time.Duration
	flagInterpreter string
	flagVerbose     bool
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagStrategy, "strategy", "", `execution strategy: "process" or "embedded" (default from .runner, else process)`)
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "per-run deadline (default from .runner, else 3s)")
	rootCmd.PersistentFlags().StringVar(&flagInterpreter, "interpreter", "", `interpreter command for the process strategy (default "deno run --allow-import")`)
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	// errors are logged once by main
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initRunner

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = logging.New(os.Stderr, false)
		}
		logger.Error("runner failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "runner",
	Short:        "Run scripts one at a time with a deadline",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("runner: %s\n", runnerpkg.Version)
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			}
		}
	},
}

// initRunner loads .runner from the working directory upward and applies
// flag overrides on top of it.
func initRunner(cmd *cobra.Command, _ []string) error {
	logger = logging.New(os.Stderr, flagVerbose)
	slog.SetDefault(logger)

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	workspace = wd

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded.Config
	cfgRoot = loaded.Root

	// flags take precedence over the config file
	if flagStrategy != "" {
		cfg.RawStrategy = flagStrategy
	}
	if flagTimeout > 0 {
		cfg.RawTimeout = flagTimeout.String()
	}
	if flagInterpreter != "" {
		cfg.RawInterpreter = strings.Fields(flagInterpreter)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Debug("config loaded", "root", cfgRoot, "strategy", cfg.Strategy(), "timeout", cfg.Timeout())
	return nil
}
