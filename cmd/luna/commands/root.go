// Package commands defines all Cobra CLI commands for the luna binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/audit"
	"github.com/fdctax/luna/internal/config"
	"github.com/fdctax/luna/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "luna",
		Short: "Luna, the knowledge-base assistant for tax advisors",
		Long: `Luna answers tax-advisory questions grounded in the firm's knowledge base.

Documents are chunked, embedded and stored in a vector store (Qdrant by
default). Chat requests retrieve the most relevant chunks, always favouring
the "Luna Style Guide" and Core material, and are answered by the primary
model provider with automatic fallback to a secondary one.

Settings come from environment variables, a .env file, or a YAML config
file (~/.luna/config.yaml). Environment variables always win.
See 'luna --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.luna/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the YAML config")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewDocumentsCmd(),
		NewPromoteCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
