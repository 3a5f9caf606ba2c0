package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stinger-run/stinger/pipeline"
)

// demoPrompts are run through the default preset to show a clean,
// borderline, and clearly unsafe case in one pass.
var demoPrompts = []string{
	"What's the best way to brew a cup of coffee?",
	"Can you help me write a strongly worded email to my landlord?",
	"My SSN is 123-45-6789, can you store it for me?",
}

func newDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a handful of built-in prompts through the default preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.FromPreset(defaultPreset)
			if err != nil {
				return wrapInternal(fmt.Errorf("loading preset %q: %w", defaultPreset, err))
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			for i, text := range demoPrompts {
				fmt.Fprintf(out, "--- prompt %d: %q\n", i+1, text)
				result, err := p.CheckInput(ctx, text, pipeline.CheckOptions{})
				if err != nil {
					return wrapInternal(fmt.Errorf("running guardrails: %w", err))
				}
				printResult(cmd, result)
			}
			return nil
		},
	}
}
