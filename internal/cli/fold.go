package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/pkg/config"
	"github.com/lineprof/lineprof/pkg/fold"
	"github.com/lineprof/lineprof/pkg/trace"
)

func newFoldCmd() *cobra.Command {
	var (
		svg   bool
		out   string
		title string
	)

	cmd := &cobra.Command{
		Use:   "fold <trace>",
		Short: "Collapse a trace into folded stack lines",
		Long: `Collapse a trace into folded stack lines, one "stack weight" pair per
line, suitable for flamegraph.pl and similar tools. Deterministic
events weigh stacks by elapsed time, sample records by occurrence
count. No timing engine is involved.

Examples:
  lineprof fold run.trace > stacks.folded
  lineprof fold --svg -o flame.svg run.trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}

			if svg {
				return renderFlameGraph(cmd, cfg, args[0], out, title)
			}

			r, err := trace.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			w, closeOut, err := openOutput(cmd, out)
			if err != nil {
				return err
			}
			defer func() { _ = closeOut() }()

			return fold.Fold(r, w)
		},
	}

	cmd.Flags().BoolVar(&svg, "svg", false, "render an SVG flame graph instead of folded text")
	cmd.Flags().StringVarP(&out, "out", "o", "", `destination ("-" for stdout)`)
	cmd.Flags().StringVar(&title, "title", "", "flame graph title")

	return cmd
}

// renderFlameGraph folds a trace and renders the SVG in one go, shared
// by "fold --svg" and the replay flame format.
func renderFlameGraph(cmd *cobra.Command, cfg *config.Config, tracePath, out, title string) error {
	r, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	var folded bytes.Buffer
	if err := fold.Fold(r, &folded); err != nil {
		return err
	}

	w, closeOut, err := openOutput(cmd, out)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	opts := fold.DefaultSVGOptions()
	opts.Width = cfg.Flame.Width
	opts.Palette = cfg.Flame.Palette
	if title != "" {
		opts.Title = title
	}
	return fold.RenderSVG(&folded, w, opts)
}
