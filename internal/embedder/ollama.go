package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
)

// OllamaEmbedder implements rag.Embedder on the eino Ollama embedding
// component, which calls the server's /api/embed endpoint. It is safe for
// concurrent use. No API key is required.
type OllamaEmbedder struct {
	// inner is the eino embedder bound to one host and model.
	inner *einoollama.Embedder
	// model is the embedding model name, kept for error messages.
	model string
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "all-minilm").
	Model string
	// Timeout bounds each embed call. Defaults to 60s.
	Timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(ctx context.Context, cfg *OllamaConfig) (*OllamaEmbedder, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	inner, err := einoollama.NewEmbedder(ctx, &einoollama.EmbeddingConfig{
		BaseURL:    strings.TrimRight(cfg.Host, "/"),
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &OllamaEmbedder{inner: inner, model: cfg.Model}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := e.inner.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: model %s: %w", e.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(vecs))
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = toFloat32(v)
	}
	return out, nil
}

// toFloat32 narrows a float64 vector to the store's float32 representation.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
