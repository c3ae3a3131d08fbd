package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/assistant"
	"github.com/fdctax/luna/internal/logging"
	"github.com/fdctax/luna/internal/provider"
	"github.com/fdctax/luna/internal/server"
	"github.com/fdctax/luna/internal/tracing"
	"github.com/fdctax/luna/internal/version"
)

// NewServeCmd constructs the `luna serve` command, which starts the HTTP
// API consumed by the CRM frontend.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Luna HTTP API",
		Long: `Start the Luna HTTP API.

The server exposes chat, document ingestion and knowledge-base
administration endpoints, plus /health, /ready and /metrics.

Examples:
  luna serve
  luna serve --port 9000
  LUNA_STORE=memory LUNA_FALLBACK_PROVIDER=none luna serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Resolved here so values from --env-file and --config apply.
			if host == "" {
				host = getEnvOrDefault("LUNA_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = getEnvInt("LUNA_PORT", 8000)
			}

			log.Info("serve starting", slog.String("version", version.Get().Version))

			flush, traced := tracing.Setup(tracing.ConfigFromEnv())
			defer flush()
			if traced {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE keys not set"))
			}

			kb, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer kb.Close()

			primaryCfg := provider.ConfigFromEnv(provider.PrimaryFromEnv())
			primary, err := buildBackend(ctx, log, primaryCfg, assistant.PrimaryTimeout)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			var fallbackCfg *provider.Config
			var fallback assistant.Backend
			if b := provider.FallbackFromEnv(); b != "" {
				fallbackCfg = provider.ConfigFromEnv(b)
				if fallback, err = buildBackend(ctx, log, fallbackCfg, assistant.FallbackTimeout); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			} else {
				log.Info("fallback provider disabled")
			}

			acfg := &assistant.Config{
				Searcher: kb.retriever,
				Primary:  primary,
				Fallback: fallback,
			}
			deps := server.Deps{
				Retriever: kb.retriever,
				Ingestion: kb.pipeline,
				Catalog:   kb.catalog,
			}
			if hs := openHistory(log); hs != nil {
				defer func() { _ = hs.Close() }()
				acfg.History = hs
				deps.History = hs
			}

			orchestrator, err := assistant.New(acfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}
			deps.Assistant = orchestrator
			log.Info("assistant ready", slog.Any("backends", orchestrator.Backends()))

			srv, err := server.New(deps, &server.Config{
				Host:        host,
				Port:        port,
				CORSOrigins: corsOrigins(),
				ProviderURL: primaryCfg.Endpoint(),
				Logger:      log,
				Pingers:     buildPingers(kb, primaryCfg, fallbackCfg),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: $LUNA_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: $LUNA_PORT or 8000)")

	return cmd
}
