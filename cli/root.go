// Package cli wires the command-line surface.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the top-level command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragplane",
		Short:         "Control plane for retrieval-augmented LLM applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML configuration file")
	root.AddCommand(newServeCmd())
	return root
}
