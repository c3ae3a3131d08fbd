package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fdctax/luna/internal/assistant"
	"github.com/fdctax/luna/internal/catalog"
	"github.com/fdctax/luna/internal/embedder"
	"github.com/fdctax/luna/internal/ingestion"
	"github.com/fdctax/luna/internal/provider"
	"github.com/fdctax/luna/internal/rag"
	"github.com/fdctax/luna/internal/server"
	"github.com/fdctax/luna/internal/store"
)

// Knowledge store selections for LUNA_STORE.
const (
	storeQdrant = "qdrant"
	storeMemory = "memory"
)

// defaultCollection is the knowledge-base collection name.
const defaultCollection = "fdc_knowledge_base"

// defaultOpenAIBase is checked by readiness when OPENAI_BASE_URL is unset.
const defaultOpenAIBase = "https://api.openai.com/v1"

// knowledgeBase bundles the components built around one Knowledge Store.
type knowledgeBase struct {
	store     rag.Store
	qdrant    *rag.QdrantStore
	embedder  rag.Embedder
	retriever *rag.Retriever
	pipeline  *ingestion.Pipeline
	catalog   *catalog.Catalog
}

// Close releases the store connection.
func (kb *knowledgeBase) Close() {
	_ = kb.store.Close()
}

// buildKnowledgeBase wires the store selected by LUNA_STORE with the
// embedder, retriever, ingestion pipeline and catalog.
func buildKnowledgeBase(ctx context.Context, log *slog.Logger) (*knowledgeBase, error) {
	embedder.WarnMisconfiguration(log)

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	kb := &knowledgeBase{embedder: emb}
	collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)

	switch backend := strings.ToLower(getEnvOrDefault("LUNA_STORE", storeQdrant)); backend {
	case storeMemory:
		kb.store = rag.NewMemoryStore(collection)
		log.Warn("knowledge store: in-memory, contents are lost on exit")
	case storeQdrant:
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		kb.store, kb.qdrant = qs, qs
		log.Info("qdrant store ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
	default:
		return nil, fmt.Errorf("unknown LUNA_STORE %q (want qdrant or memory)", backend)
	}

	if kb.retriever, err = rag.NewRetriever(emb, kb.store); err != nil {
		kb.Close()
		return nil, err
	}
	kb.pipeline, err = ingestion.NewPipeline(emb, kb.store, &ingestion.Config{
		ChunkSize:    getEnvInt("LUNA_CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("LUNA_CHUNK_OVERLAP", 0),
	})
	if err != nil {
		kb.Close()
		return nil, err
	}
	kb.catalog = catalog.New(kb.store)
	return kb, nil
}

// buildBackend constructs one generation backend. A backend that cannot be
// built is kept in the chain as unavailable so every request records why.
func buildBackend(ctx context.Context, log *slog.Logger, cfg *provider.Config, timeout time.Duration) (assistant.Backend, error) {
	name := string(cfg.Backend)
	m, err := provider.New(ctx, cfg)
	if err != nil {
		if errors.Is(err, provider.ErrUnconfigured) {
			log.Warn("provider unconfigured", slog.String("provider", name), slog.Any("error", err))
			return assistant.NewUnavailableBackend(name, err), nil
		}
		return nil, fmt.Errorf("failed to initialise provider %s: %w", name, err)
	}
	b, err := assistant.NewModelBackend(ctx, name, m, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to compile backend %s: %w", name, err)
	}
	log.Info("provider initialised",
		slog.String("provider", name),
		slog.String("model", cfg.ModelName()),
		slog.Duration("timeout", timeout),
	)
	return b, nil
}

// providerPinger returns a zero-token readiness check for cfg, or nil when
// the backend has no cheap check endpoint.
func providerPinger(role string, cfg *provider.Config) server.Pinger {
	name := role + ":" + string(cfg.Backend)
	switch cfg.Backend {
	case provider.BackendOllama:
		return server.NewHTTPPinger(name, cfg.Ollama.Host+"/api/tags", nil)
	case provider.BackendOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil
		}
		base := strings.TrimRight(cfg.OpenAI.BaseURL, "/")
		if base == "" {
			base = defaultOpenAIBase
		}
		return server.NewHTTPPinger(name, base+"/models",
			http.Header{"Authorization": {"Bearer " + cfg.OpenAI.APIKey}})
	default:
		return nil
	}
}

// buildPingers assembles the readiness checks for the configured backends
// and the Qdrant store.
func buildPingers(kb *knowledgeBase, primary, fallback *provider.Config) []server.Pinger {
	var pingers []server.Pinger
	if p := providerPinger("primary", primary); p != nil {
		pingers = append(pingers, p)
	}
	if fallback != nil {
		if p := providerPinger("fallback", fallback); p != nil {
			pingers = append(pingers, p)
		}
	}
	if kb.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(kb.qdrant.Client()))
	}
	return pingers
}

// openHistory opens the chat history store. LUNA_HISTORY_DB overrides the
// default path (~/.luna/history.db); "disabled" turns history off. Failures
// disable history rather than aborting startup.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("LUNA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via LUNA_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// corsOrigins parses LUNA_CORS_ORIGINS as a comma-separated list.
func corsOrigins() []string {
	var out []string
	for _, o := range strings.Split(os.Getenv("LUNA_CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named environment variable as an int, or fallback
// when it is unset or not a number.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
