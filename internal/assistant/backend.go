package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Per-attempt generation timeouts.
const (
	PrimaryTimeout  = 60 * time.Second
	FallbackTimeout = 30 * time.Second
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("assistant: backend returned an empty response")

// Backend generates one assistant reply from a fully rendered message list.
type Backend interface {
	// Name identifies the backend in responses, logs and metrics.
	Name() string
	// Generate returns the reply text. A blank reply is an error.
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

// ModelBackend runs an eino chat model behind a single-node chain so the
// global callback handlers (tracing) observe every call.
type ModelBackend struct {
	name     string
	timeout  time.Duration
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewModelBackend compiles m into a Backend named name. A non-positive
// timeout disables the per-attempt deadline.
func NewModelBackend(ctx context.Context, name string, m model.BaseChatModel, timeout time.Duration) (*ModelBackend, error) {
	if m == nil {
		return nil, fmt.Errorf("assistant: chat model for %q must not be nil", name)
	}
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(m, compose.WithNodeName(name))
	r, err := chain.Compile(ctx, compose.WithGraphName("luna_"+name))
	if err != nil {
		return nil, fmt.Errorf("assistant: compile %s chain: %w", name, err)
	}
	return &ModelBackend{name: name, timeout: timeout, runnable: r}, nil
}

// Name returns the backend name.
func (b *ModelBackend) Name() string { return b.name }

// Generate invokes the model with the configured deadline.
func (b *ModelBackend) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	out, err := b.runnable.Invoke(ctx, msgs)
	if err != nil {
		// Some SDKs hide the context error behind their own; surface it.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("%s: %w: %w", b.name, ctxErr, err)
		}
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("%s: %w", b.name, ErrEmptyResponse)
	}
	return out.Content, nil
}

// UnavailableBackend stands in for a backend that could not be built, for
// example a fallback with no API key. Every call fails with err.
type UnavailableBackend struct {
	name string
	err  error
}

// NewUnavailableBackend returns a Backend that always fails with err.
func NewUnavailableBackend(name string, err error) *UnavailableBackend {
	return &UnavailableBackend{name: name, err: err}
}

// Name returns the backend name.
func (b *UnavailableBackend) Name() string { return b.name }

// Generate always returns the construction error.
func (b *UnavailableBackend) Generate(context.Context, []*schema.Message) (string, error) {
	return "", fmt.Errorf("%s: %w", b.name, b.err)
}
