package cli

import (
	"github.com/spf13/cobra"

	"github.com/hobgoblin/qao/internal/core/priority"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <graph.yaml>",
		Short: "Print the priorities of a category graph",
		Long: `Resolve a category dependency graph and print each category's execution
priority in declaration order. Cycles and undeclared dependencies are errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := priority.LoadGraph(args[0])
			if err != nil {
				return err
			}
			printPriorities(cmd.OutOrStdout(), r)
			return nil
		},
	}
}
