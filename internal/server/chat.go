package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fdctax/luna/internal/assistant"
	"github.com/fdctax/luna/internal/logging"
)

// Chat outcome label values.
const (
	outcomeOK      = "ok"
	outcomeTimeout = "timeout"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// defaultHistoryLimit is the number of messages GET /chat/history returns
// when no limit is given.
const defaultHistoryLimit = 50

// handleChat handles POST /chat. It answers the latest user message with
// knowledge-base context, falling back to the secondary backend when the
// primary fails.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.observeChat(outcomeInvalid, "", start)
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.observeChat(outcomeInvalid, "", start)
		writeJSONError(w, r, http.StatusBadRequest, "messages is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	resp, err := s.deps.Assistant.Respond(ctx, assistant.Request{
		Messages:      req.Messages,
		SessionID:     req.SessionID,
		Form:          req.FormContext,
		ForceFallback: req.UseFallback,
	})
	if err != nil {
		outcome := outcomeError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
		s.observeChat(outcome, "", start)
		log.Warn("chat failed",
			slog.String("session_id", req.SessionID),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		writeError(w, r, err)
		return
	}

	s.observeChat(outcomeOK, resp.Provider, start)
	log.Info("chat answered",
		slog.String("session_id", resp.SessionID),
		slog.String("provider", resp.Provider),
		slog.Int("sources", len(resp.Sources)),
	)

	sources := resp.Sources
	if sources == nil {
		sources = []assistant.Source{}
	}
	writeJSON(w, r, http.StatusOK, chatResponse{
		Message:   resp.Message,
		KBSources: sources,
		SessionID: resp.SessionID,
		Provider:  resp.Provider,
	})
}

// observeChat records the chat counters for one request.
func (s *Server) observeChat(outcome, provider string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome, provider).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleHistory handles GET /chat/history/{session_id}. It returns 404 when
// no history store is configured.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSONError(w, r, http.StatusNotFound, "chat history is not enabled")
		return
	}
	sessionID := r.PathValue("session_id")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.deps.History.Recent(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := historyResponse{SessionID: sessionID, Messages: make([]historyMessage, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = historyMessage{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
	}
	writeJSON(w, r, http.StatusOK, out)
}
