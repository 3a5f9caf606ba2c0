package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stinger-run/stinger/health"
	"github.com/stinger-run/stinger/pipeline"
)

func newHealthCommand() *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print a system health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.FromPreset(defaultPreset)
			if err != nil {
				return wrapInternal(fmt.Errorf("loading preset %q: %w", defaultPreset, err))
			}
			monitor := health.New()
			monitor.Pipeline = p

			snapshot := monitor.GetSystemHealth()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", snapshot.OverallStatus)
			fmt.Fprintf(out, "pipeline available: %v (total=%d enabled=%d)\n",
				snapshot.PipelineStatus.Available, snapshot.PipelineStatus.Total, snapshot.PipelineStatus.TotalEnabled)

			if !detailed {
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print the full JSON snapshot")
	return cmd
}
