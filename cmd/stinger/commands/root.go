package commands

import (
	"github.com/spf13/cobra"
)

// version is the CLI's semver, printed by --version (spec §6.3).
const version = "1.0.0"

var defaultPreset string

// NewRootCommand builds the stinger CLI, grounded on the teacher pack's
// cobra root-command registration pattern: a persistent --preset flag
// plus one subcommand per verb.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stinger",
		Short:         "LLM safety middleware: guardrail checks from the command line",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&defaultPreset, "preset", "customer_service", "guardrail preset to load")

	root.AddCommand(newCheckPromptCommand())
	root.AddCommand(newCheckResponseCommand())
	root.AddCommand(newDemoCommand())
	root.AddCommand(newHealthCommand())
	root.AddCommand(newSetupCommand())
	root.AddCommand(newServeCommand())

	return root
}
