package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/version"
)

// NewVersionCmd constructs the `luna version` subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the luna version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
