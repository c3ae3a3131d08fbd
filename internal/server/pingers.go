package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// HTTPPinger checks an HTTP dependency with a single GET and treats any 2xx
// response as healthy. It is used for Ollama ({host}/api/tags) and
// OpenAI-compatible endpoints ({base}/models) so readiness checks never
// consume generation tokens.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the check target.
	url string
	// header is sent with every check (e.g. Authorization).
	header http.Header
	// client performs the check.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. header may be nil.
func NewHTTPPinger(name, url string, header http.Header) *HTTPPinger {
	return &HTTPPinger{
		name:   name,
		url:    url,
		header: header,
		client: &http.Client{Timeout: checkTimeout + time.Second},
	}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues GET url and fails on transport errors or non-2xx statuses.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build check request: %w", err)
	}
	for k, vs := range p.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("check %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("check %s: unexpected status %d", p.url, resp.StatusCode)
	}
	return nil
}

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to check.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
