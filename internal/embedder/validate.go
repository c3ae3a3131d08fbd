package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments identify chat/completion models that are NOT suitable
// for embedding.
var chatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// WarnMisconfiguration logs a warning when EMBEDDING_MODEL names a chat
// model, a common mistake when OLLAMA_MODEL is copied over. It reports
// whether a warning was emitted.
func WarnMisconfiguration(log *slog.Logger) bool {
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" || !looksLikeChatModel(model) {
		return false
	}
	log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
		slog.String("model", model),
		slog.String("hint", "use a dedicated embedding model e.g. all-minilm, nomic-embed-text, text-embedding-3-small"),
	)
	return true
}
