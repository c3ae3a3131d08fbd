// Package tracing wires Langfuse into eino's global callback chain so every
// compiled generation chain run by the assistant is traced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = DefaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both Langfuse keys are set.
func (c Config) Enabled() bool { return c.PublicKey != "" && c.SecretKey != "" }

// Setup registers a Langfuse handler as a global eino callback when cfg is
// enabled. The returned flush function must be called before process exit
// so buffered traces are sent; it is a no-op when tracing is disabled.
func Setup(cfg Config) (flush func(), enabled bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "luna",
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
