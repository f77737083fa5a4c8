package cli

import (
	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/pkg/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		events     int
		iterations int
		warmup     int
		depth      int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the tracker hot path",
		Long: `Drive a synthetic workload through the timing engine and report the
per-event cost distribution of the deterministic and statistic paths.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := bench.Run(bench.Options{
				Events:     events,
				Iterations: iterations,
				Warmup:     warmup,
				Depth:      depth,
			})
			bench.RenderResults(cmd.OutOrStdout(), results, bench.MeasureOverhead())
			return nil
		},
	}

	defaults := bench.DefaultOptions()
	cmd.Flags().IntVar(&events, "events", defaults.Events, "events per iteration")
	cmd.Flags().IntVar(&iterations, "iterations", defaults.Iterations, "timed iterations per scenario")
	cmd.Flags().IntVar(&warmup, "warmup", defaults.Warmup, "discarded warmup iterations")
	cmd.Flags().IntVar(&depth, "depth", defaults.Depth, "synthetic call stack depth")

	return cmd
}
