package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fdctax/luna/internal/logging"
)

// checkTimeout is the maximum time allowed for each individual dependency
// check made by GET /ready.
const checkTimeout = 5 * time.Second

// Pinger reports the reachability of one dependency (generation backend,
// embedding provider, Qdrant). Implementations must be safe to call from
// multiple goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses.
	Name() string
}

// handleHealth handles GET /health. It reports the configured primary
// backend endpoint and the number of stored chunks, and returns 503 when
// the knowledge store cannot be counted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", ProviderURL: s.cfg.ProviderURL}

	st, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("health: knowledge store unavailable", slog.Any("error", err))
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	resp.KBDocuments = st.TotalChunks
	writeJSON(w, r, http.StatusOK, resp)
}

// readyCheck holds the per-dependency result of a readiness check.
type readyCheck struct {
	// Name is the dependency label (e.g. "primary:ollama", "qdrant").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /ready.
type readyResponse struct {
	// Ready is true only when every dependency check succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency check results.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /ready. It checks every registered Pinger
// concurrently, each bounded by checkTimeout, and returns 200 when all
// dependencies are reachable or 503 when any check fails. Checks keep the
// registration order.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			checks[i] = readyCheck{Name: p.Name(), OK: true}
			if err := p.Ping(ctx); err != nil {
				checks[i].OK = false
				checks[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
