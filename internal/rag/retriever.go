package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/logging"
)

const (
	// overFetch is the candidate multiplier applied to the caller's limit
	// before re-ranking.
	overFetch = 2

	// StyleGuidePhrase is matched case-insensitively against the title and
	// filename of every candidate.
	StyleGuidePhrase = "luna style guide"

	// StyleGuideBoost multiplies the distance of style-guide candidates.
	StyleGuideBoost = 0.5
)

// Retriever embeds a query, over-fetches candidates from the Store and
// re-ranks them so style-guide material is preferred.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store Store
}

// NewRetriever constructs a Retriever from the given Embedder and Store.
func NewRetriever(embedder Embedder, store Store) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &Retriever{embedder: embedder, store: store}, nil
}

// Search returns at most limit results for query, ordered by (boosted)
// distance ascending. An empty store yields an empty, non-nil slice.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, apperr.Validation("search limit must be positive, got %d", limit)
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Upstream("rag: embedding query failed", err)
	}
	if len(embeddings) == 0 {
		return nil, apperr.Upstream("rag: embedding query failed", fmt.Errorf("embedder returned no vectors"))
	}

	candidates, err := r.store.Query(ctx, embeddings[0], overFetch*limit)
	if err != nil {
		return nil, apperr.Upstream("rag: vector search failed", err)
	}

	ranked := Prioritize(candidates, limit)
	logging.FromContext(ctx).Debug("rag: search",
		slog.Int("candidates", len(candidates)),
		slog.Int("returned", len(ranked)),
	)
	return ranked, nil
}

// IsStyleGuide reports whether a result's title or filename contains the
// style-guide phrase, ignoring case.
func IsStyleGuide(m Metadata) bool {
	return strings.Contains(strings.ToLower(m.Title), StyleGuidePhrase) ||
		strings.Contains(strings.ToLower(m.Filename), StyleGuidePhrase)
}

// Prioritize applies the style-guide boost to candidates and returns the
// best limit of them. Matched candidates have their distance multiplied by
// StyleGuideBoost exactly once and are placed ahead of unmatched ones
// before a stable sort, so ties resolve in favour of the style guide and
// then of the store's original order. The input slice is not modified.
func Prioritize(candidates []Result, limit int) []Result {
	boosted := make([]Result, 0, len(candidates))
	rest := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if IsStyleGuide(c.Metadata) {
			c.Distance *= StyleGuideBoost
			boosted = append(boosted, c)
			continue
		}
		rest = append(rest, c)
	}

	ranked := append(boosted, rest...)
	slices.SortStableFunc(ranked, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})

	if limit = max(limit, 0); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
