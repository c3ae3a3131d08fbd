// Package budget estimates prompt size and trims conversation history so a
// chat request fits the model's context window. Backends use different
// tokenizers, so estimates use a fixed ratio of runes per token.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// runesPerToken is the estimation ratio. Runes rather than bytes keep
	// umlauts and other multi-byte letters from inflating the estimate.
	runesPerToken = 4

	// messageOverhead is the per-message framing cost charged by chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens.
	// It fits 8k-context models such as Llama 3 8B with room for the reply.
	DefaultMaxContextTokens = 6000
)

// Estimate returns the estimated token count of s, rounded up.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + runesPerToken - 1) / runesPerToken
}

// EstimateMessage returns the estimated cost of one message.
func EstimateMessage(m *schema.Message) int {
	return messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// EstimateMessages returns the estimated total cost of msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}

// TrimHistory drops the oldest turns of history until fixed plus history
// fits maxTokens. fixed (system prompt and current question) is never
// trimmed. After trimming, the kept history never starts with an assistant
// reply whose question was dropped.
//
// If fixed alone exceeds the budget the result is empty; callers detect that
// case with Remaining.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	used := EstimateMessages(fixed) + EstimateMessages(history)
	start := 0
	for start < len(history) && used > maxTokens {
		used -= EstimateMessage(history[start])
		start++
	}
	for start < len(history) && history[start].Role == schema.Assistant {
		start++
	}
	return history[start:]
}

// Remaining returns how many tokens are left in maxTokens after msgs.
// The result is negative when msgs alone exceed the budget.
func Remaining(msgs []*schema.Message, maxTokens int) int {
	return maxTokens - EstimateMessages(msgs)
}
