package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/pkg/profiler"
)

var (
	checkOK  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	checkBad = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func newCheckCmd() *cobra.Command {
	var statistic bool

	cmd := &cobra.Command{
		Use:   "check <trace>",
		Short: "Replay a trace and verify dataset invariants",
		Long: `Replay a trace and verify the merged dataset's structural invariants:
unit totals match the sum of their line cells, call edges resolve to
known callables, display names stay unique. Exits non-zero when any
invariant is violated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ds, _, err := replayTrace(cmd, args[0], statistic, nil, logger)
			if err != nil {
				return err
			}

			issues := profiler.Verify(ds)
			if len(issues) == 0 {
				cmd.Printf("%s %d unit(s), %d writer(s), total %v\n",
					checkOK.Render("consistent:"), len(ds.Units), ds.Writers, ds.TotalTime)
				return nil
			}
			for _, issue := range issues {
				cmd.PrintErrln(checkBad.Render("violation:"), issue.String())
			}
			return fmt.Errorf("%d invariant violation(s)", len(issues))
		},
	}

	cmd.Flags().BoolVarP(&statistic, "statistic", "s", false, "feed sample records through the statistic engine")

	return cmd
}
