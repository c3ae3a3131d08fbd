// Package assistant implements Luna's generation orchestrator. For each
// chat request it retrieves knowledge-base context for the latest user
// message, renders the system prompt and walks an ordered chain of
// generation backends until one produces a reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/budget"
	"github.com/fdctax/luna/internal/logging"
	"github.com/fdctax/luna/internal/rag"
	"github.com/fdctax/luna/internal/store"
)

// SourceLimit is the number of knowledge-base results injected per reply.
const SourceLimit = 3

// Role values accepted in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Searcher retrieves prioritised knowledge-base results for a query.
// *rag.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]rag.Result, error)
}

// Message is one conversation turn as sent by the CRM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat request.
type Request struct {
	// Messages is the conversation so far. The last user entry is answered.
	Messages []Message
	// SessionID is echoed back and keys persisted history.
	SessionID string
	// Form is optional onboarding form state.
	Form *FormContext
	// ForceFallback skips the primary backend.
	ForceFallback bool
}

// Source is a knowledge-base citation returned to the UI.
type Source struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Response is the orchestrator's answer.
type Response struct {
	// Message is the assistant reply.
	Message Message
	// Sources lists the retrieved results, in prompt order.
	Sources []Source
	// SessionID echoes the request.
	SessionID string
	// Provider names the backend that produced Message.
	Provider string
	// Attempts records backends that failed or were skipped first.
	Attempts []Attempt
}

// Config holds the orchestrator dependencies.
type Config struct {
	// Searcher supplies knowledge-base context. Required.
	Searcher Searcher
	// Primary is tried first. Required.
	Primary Backend
	// Fallback is tried once when the primary fails or is skipped.
	// Nil means no fallback is configured.
	Fallback Backend
	// History persists each answered turn when non-nil.
	History store.ConversationStore
	// MaxContextTokens bounds the estimated prompt size. Prior turns are
	// dropped oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Orchestrator answers chat requests.
type Orchestrator struct {
	searcher         Searcher
	backends         []Backend
	history          store.ConversationStore
	maxContextTokens int
}

// New validates cfg and returns an Orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Searcher == nil {
		return nil, fmt.Errorf("assistant: searcher must not be nil")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("assistant: primary backend must not be nil")
	}
	backends := []Backend{cfg.Primary}
	if cfg.Fallback != nil {
		backends = append(backends, cfg.Fallback)
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Orchestrator{
		searcher:         cfg.Searcher,
		backends:         backends,
		history:          cfg.History,
		maxContextTokens: maxCtx,
	}, nil
}

// Backends returns the backend names in the order they are tried.
func (o *Orchestrator) Backends() []string {
	names := make([]string, len(o.backends))
	for i, b := range o.backends {
		names[i] = b.Name()
	}
	return names
}

// Respond answers the latest user message in req. It fails with
// apperr.ErrNoUserMessage when the conversation has no user turn and with
// a *FallbackError when no backend produced a reply.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	log := logging.FromContext(ctx)

	last := lastUserIndex(req.Messages)
	if last < 0 {
		return nil, apperr.ErrNoUserMessage
	}
	question := req.Messages[last].Content

	results, err := o.searcher.Search(ctx, question, SourceLimit)
	if err != nil {
		// Search failures degrade to an ungrounded answer.
		log.Warn("assistant: knowledge base search failed", slog.Any("error", err))
		results = nil
	}

	msgs := o.buildMessages(ctx, req, last, results)

	reply, served, attempts, err := o.generate(ctx, msgs, req.ForceFallback)
	if err != nil {
		return nil, err
	}

	if o.history != nil && req.SessionID != "" {
		if err := o.history.AppendTurn(ctx, req.SessionID, question, reply); err != nil {
			log.Warn("history: failed to persist turn",
				slog.String("session_id", req.SessionID),
				slog.Any("error", err),
			)
		}
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{Title: titleOf(r.Metadata), Category: categoryOf(r.Metadata)}
	}

	return &Response{
		Message:   Message{Role: RoleAssistant, Content: reply},
		Sources:   sources,
		SessionID: req.SessionID,
		Provider:  served,
		Attempts:  attempts,
	}, nil
}

// generate walks the backend chain. Each backend is tried at most once;
// the walk stops early when the caller's context is done.
func (o *Orchestrator) generate(ctx context.Context, msgs []*schema.Message, forceFallback bool) (string, string, []Attempt, error) {
	log := logging.FromContext(ctx)
	var attempts []Attempt

	for i, b := range o.backends {
		if i == 0 && forceFallback {
			attempts = append(attempts, Attempt{Backend: b.Name(), Reason: ReasonSkipped})
			continue
		}

		reply, err := b.Generate(ctx, msgs)
		if err == nil {
			if len(attempts) > 0 {
				log.Info("assistant: served by fallback", slog.String("provider", b.Name()))
			}
			return reply, b.Name(), attempts, nil
		}

		reason := classify(err)
		attempts = append(attempts, Attempt{Backend: b.Name(), Reason: reason, Err: err})
		log.Warn("assistant: backend failed",
			slog.String("provider", b.Name()),
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)

		if ctxErr := ctx.Err(); ctxErr != nil {
			break
		}
	}

	return "", "", attempts, &FallbackError{Attempts: attempts}
}

// buildMessages assembles system prompt, trimmed prior turns and the
// question. Only user and assistant turns before the question are kept.
func (o *Orchestrator) buildMessages(ctx context.Context, req Request, last int, results []rag.Result) []*schema.Message {
	fixed := []*schema.Message{
		schema.SystemMessage(SystemPrompt(results, req.Form)),
		schema.UserMessage(req.Messages[last].Content),
	}

	var history []*schema.Message
	for _, m := range req.Messages[:last] {
		switch m.Role {
		case RoleUser:
			history = append(history, schema.UserMessage(m.Content))
		case RoleAssistant:
			history = append(history, schema.AssistantMessage(m.Content, nil))
		}
	}

	kept := budget.TrimHistory(fixed, history, o.maxContextTokens)
	if dropped := len(history) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Debug("assistant: history trimmed",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(kept)),
		)
	}
	if budget.Remaining(fixed, o.maxContextTokens) < 0 {
		logging.FromContext(ctx).Warn("assistant: prompt exceeds context budget",
			slog.Int("estimated_tokens", budget.EstimateMessages(fixed)),
			slog.Int("budget", o.maxContextTokens),
		)
	}

	msgs := make([]*schema.Message, 0, len(kept)+2)
	msgs = append(msgs, fixed[0])
	msgs = append(msgs, kept...)
	msgs = append(msgs, fixed[1])
	return msgs
}

func lastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
