package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stinger-run/stinger/pipeline"
)

// newSetupCommand is the interactive wizard spec §6.3 scopes as
// "external to core": it only prompts for a preset choice and confirms
// it loads, rather than writing a full deployment config.
func newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively pick and validate a guardrail preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available presets:")
			for _, name := range pipeline.PresetNames {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			fmt.Fprint(out, "Preset to use [customer_service]: ")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			choice := "customer_service"
			if scanner.Scan() {
				if line := scanner.Text(); line != "" {
					choice = line
				}
			}

			if _, err := pipeline.FromPreset(choice); err != nil {
				return newUserError(fmt.Sprintf("preset %q is not valid: %v", choice, err))
			}
			fmt.Fprintf(out, "preset %q loads cleanly. Set STINGER_DEFAULT_PRESET=%s to use it.\n", choice, choice)
			return nil
		},
	}
}
