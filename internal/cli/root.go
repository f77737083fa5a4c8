// Package cli implements the lineprof command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/pkg/config"
	"github.com/lineprof/lineprof/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "lineprof",
	Short: "Line-granularity execution profile toolkit",
	Long: `Replay recorded execution traces into per-line timing reports.

lineprof consumes JSON-line trace streams produced by instrumented
interpreters: deterministic enter/step/leave events per thread, or
periodic stack samples. It aggregates them into per-line hit counts and
durations, with call edges between source units.

Report formats:
  annotate   per-line source listing with hits and time
  callgrind  kcachegrind compatible
  summary    styled terminal digest
  json       machine-readable dataset dump
  pprof      Go pprof protobuf
  flame      SVG flame graph rendered straight from the trace`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is config.yaml under the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging plus the per-event trace log")

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newFoldCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("lineprof version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func resolveConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.NewLoader().Load()
}

// newLogger builds the command logger. The configured level applies
// unless --verbose lifts it to debug.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

// openOutput resolves the report destination. Empty or "-" selects the
// command's stdout.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output %s: %w", path, err)
	}
	return f, f.Close, nil
}
