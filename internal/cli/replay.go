package cli

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/pkg/archive"
	"github.com/lineprof/lineprof/pkg/config"
	"github.com/lineprof/lineprof/pkg/profiler"
	"github.com/lineprof/lineprof/pkg/report"
	"github.com/lineprof/lineprof/pkg/trace"
)

func newReplayCmd() *cobra.Command {
	var (
		format    string
		out       string
		zipPath   string
		statistic bool
		include   []string
		exclude   []string
		threads   []int64
		pprofAddr string
	)

	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay a trace into a line profile report",
		Long: `Replay a recorded trace stream through the timing engine and render
the merged dataset.

The trace may be plain or gzip-compressed JSON lines. Deterministic
traces (enter/step/leave events) yield exact per-line durations;
--statistic instead feeds sample records through the statistic engine,
counting stack occurrences.

Without an explicit --format the configured default applies, except
that writing to a file whose name starts with "cachegrind.out." selects
callgrind. The flame format renders straight from the trace, so
--include, --exclude and --thread do not apply to it.

Examples:
  # Terminal summary
  lineprof replay run.trace

  # Annotated source listing to a file
  lineprof replay -f annotate -o profile.txt run.trace.gz

  # kcachegrind bundle with embedded sources
  lineprof replay -z profile.zip run.trace

  # Only threads 1 and 7, rendered as pprof
  lineprof replay --thread 1 --thread 7 -f pprof -o profile.pb run.trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			if !cmd.Flags().Changed("format") {
				format = inferFormat(cfg, out)
			}
			if len(include) == 0 {
				include = cfg.Include
			}
			if len(exclude) == 0 {
				exclude = cfg.Exclude
			}
			filter, err := report.NewFilter(exclude, include)
			if err != nil {
				return err
			}

			if pprofAddr != "" {
				servePprof(logger, pprofAddr)
			}

			if format == "flame" {
				return renderFlameGraph(cmd, cfg, args[0], out, "")
			}

			ds, sum, err := replayTrace(cmd, args[0], statistic, threads, logger)
			if err != nil {
				return err
			}
			ds = filter.Apply(ds)

			ropts := report.Options{
				CommandLine:   sum.Meta["cmd"],
				RelativePaths: format == "callgrind" && zipPath != "",
			}

			if zipPath != "" {
				if err := writeBundle(zipPath, ds, ropts); err != nil {
					return err
				}
				logger.WithField("path", zipPath).Info("Bundle written")
				if !cmd.Flags().Changed("out") {
					return nil
				}
			}

			w, closeOut, err := openOutput(cmd, out)
			if err != nil {
				return err
			}
			defer func() { _ = closeOut() }()

			switch format {
			case "annotate":
				return report.Annotate(w, ds, ropts)
			case "callgrind":
				return report.Callgrind(w, ds, ropts)
			case "json":
				return report.JSON(w, ds, ropts)
			case "pprof":
				return report.Pprof(w, ds, ropts)
			case "summary":
				return report.Summary(w, ds, report.SummaryOptions{
					CommandLine: ropts.CommandLine,
					TopLines:    cfg.TopLines,
				})
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "report format: annotate|callgrind|summary|json|pprof|flame")
	cmd.Flags().StringVarP(&out, "out", "o", "", `report destination ("-" for stdout)`)
	cmd.Flags().StringVarP(&zipPath, "zip", "z", "", "write a kcachegrind bundle (callgrind report plus sources)")
	cmd.Flags().BoolVarP(&statistic, "statistic", "s", false, "feed sample records through the statistic engine")
	cmd.Flags().StringArrayVar(&include, "include", nil, "only keep units matching the regexp (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "drop units matching the regexp (repeatable)")
	cmd.Flags().Int64SliceVar(&threads, "thread", nil, "replay only the listed thread ids (repeatable)")
	cmd.Flags().StringVar(&pprofAddr, "pprof-addr", "", "serve net/http/pprof on this address while replaying")

	return cmd
}

// inferFormat applies the output-name convention before the configured
// default: callgrind tooling looks for cachegrind.out.* files.
func inferFormat(cfg *config.Config, out string) string {
	if out != "" && out != "-" && strings.HasPrefix(filepath.Base(out), "cachegrind.out.") {
		return "callgrind"
	}
	return cfg.Format
}

// replayTrace runs a trace through the deterministic or statistic
// engine and returns the merged dataset. The dataset total reflects the
// recorded run's span, not replay wall time.
func replayTrace(cmd *cobra.Command, path string, statistic bool, threads []int64, logger *logrus.Logger) (*profiler.Dataset, *trace.Summary, error) {
	r, err := trace.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = r.Close() }()

	ropts := trace.ReplayOptions{Logger: logger, Threads: threads}

	var ds *profiler.Dataset
	var sum *trace.Summary
	if statistic {
		s := profiler.NewStatistic(profiler.Options{Logger: logger})
		sum, err = trace.ReplayStatistic(cmd.Context(), r, s, ropts)
		if err != nil {
			return nil, nil, err
		}
		attachSources(s.Registry())
		ds = s.Merge()
	} else {
		p := profiler.New(profiler.Options{Logger: logger, Verbose: verbose})
		p.Enable()
		sum, err = trace.Replay(cmd.Context(), r, p, ropts)
		if err != nil {
			return nil, nil, err
		}
		p.Disable()
		attachSources(p.Registry())
		ds = p.Merge()
	}
	ds.TotalTime = sum.Span

	logger.WithFields(logrus.Fields{
		"records": sum.Records,
		"threads": sum.Threads,
		"samples": sum.Samples,
		"skipped": sum.Skipped,
		"span":    sum.Span,
	}).Info("Trace replayed")
	return ds, sum, nil
}

// attachSources gives units whose names resolve to readable files a
// filesystem source accessor, so annotate output and bundles can show
// the program text alongside its timing.
func attachSources(reg *profiler.Registry) {
	for i := 0; i < reg.UnitCount(); i++ {
		u := reg.Unit(profiler.UnitID(i))
		if info, err := os.Stat(u.Name); err != nil || info.IsDir() {
			continue
		}
		reg.SetSource(u.ID, profiler.NewFileSource(u.Name))
	}
}

func servePprof(logger *logrus.Logger, addr string) {
	go func() {
		logger.WithField("addr", addr).Info("Serving runtime profiles")
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.WithError(err).Warn("Runtime profile server stopped")
		}
	}()
}

func writeBundle(path string, ds *profiler.Dataset, opts report.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create bundle %s: %w", path, err)
	}
	if err := archive.Bundle(f, ds, opts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
