package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stinger-run/stinger/pipeline"
)

func newCheckPromptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-prompt <text>",
		Short: "Run text through the input-stage guardrails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], false)
		},
	}
}

func newCheckResponseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-response <text>",
		Short: "Run text through the output-stage guardrails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], true)
		},
	}
}

func runCheck(cmd *cobra.Command, text string, output bool) error {
	p, err := pipeline.FromPreset(defaultPreset)
	if err != nil {
		return wrapInternal(fmt.Errorf("loading preset %q: %w", defaultPreset, err))
	}

	ctx := cmd.Context()
	var result pipeline.Result
	if output {
		result, err = p.CheckOutput(ctx, text, pipeline.CheckOptions{})
	} else {
		result, err = p.CheckInput(ctx, text, pipeline.CheckOptions{})
	}
	if err != nil {
		return wrapInternal(fmt.Errorf("running guardrails: %w", err))
	}

	printResult(cmd, result)
	if result.Blocked {
		return newUserError("blocked by guardrails")
	}
	return nil
}

func printResult(cmd *cobra.Command, result pipeline.Result) {
	out := cmd.OutOrStdout()
	if result.Blocked {
		fmt.Fprintln(out, "BLOCKED")
	} else {
		fmt.Fprintln(out, "ALLOWED")
	}
	for _, reason := range result.Reasons {
		fmt.Fprintf(out, "  reason: %s\n", reason)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", warning)
	}
	fmt.Fprintf(out, "processed in %.2fms\n", result.ProcessingTimeMs)
}
