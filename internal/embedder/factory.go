package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fdctax/luna/internal/rag"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel is the Ollama build of all-MiniLM-L6-v2, the
	// sentence-embedding model the knowledge base was first indexed with.
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of all-minilm.
	// Other Ollama models differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 384
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Backend returns the resolved embedding backend name:
// EMBEDDING_PROVIDER, defaulting to "ollama".
func Backend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")
}

// DefaultDimensions returns the embedding vector size for the given backend.
// Callers that pre-configure a vector store (Qdrant collection creation)
// should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables and wraps
// it with [NewRateLimited] when LUNA_EMBED_RPS is set.
//
// Environment variables:
//
//	EMBEDDING_PROVIDER   = ollama | openai | azure (default: ollama)
//	EMBEDDING_MODEL      overrides the backend's default model
//	EMBEDDING_ENDPOINT   overrides OLLAMA_HOST / the OpenAI base URL / AZURE_OPENAI_ENDPOINT
//	EMBEDDING_API_KEY    overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//	EMBEDDING_DIMENSIONS overrides the vector size (openai/azure only request it)
//	LUNA_EMBED_RPS       caps embed calls per second (0 = unlimited)
func NewFromEnv() (rag.Embedder, error) {
	emb, err := newBackend(Backend())
	if err != nil {
		return nil, err
	}
	rps, _ := strconv.ParseFloat(os.Getenv("LUNA_EMBED_RPS"), 64)
	return NewRateLimited(emb, rps, getEnvInt("LUNA_EMBED_BURST", 1)), nil
}

func newBackend(backend string) (rag.Embedder, error) {
	switch backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		// The eino constructor only builds a client; it does no I/O.
		emb, err := NewOllamaEmbedder(context.Background(), &OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		})
		if err != nil {
			return nil, err
		}
		return emb, nil

	case "openai":
		apiKey := firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnv("EMBEDDING_ENDPOINT"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q: valid values are ollama, openai, azure", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
