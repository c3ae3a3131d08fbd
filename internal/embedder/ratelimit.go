package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/fdctax/luna/internal/rag"
)

// RateLimited paces calls to an upstream embedder with a token bucket so
// bulk ingestion does not trip provider quotas. Each Embed call consumes
// one token regardless of batch size.
type RateLimited struct {
	next    rag.Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most rps calls per second are made,
// with bursts of up to burst calls. A non-positive rps returns next
// unchanged.
func NewRateLimited(next rag.Embedder, rps float64, burst int) rag.Embedder {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for a token, honouring ctx cancellation, then delegates.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
	}
	return r.next.Embed(ctx, texts)
}
