package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"USt!", 1},
		{"Umsatz", 2},
		{"Größe", 2},
		{"Fälligkeit", 3},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("ü", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.input); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	t.Parallel()
	// Each message: 4 overhead + Estimate(role) + Estimate(content).
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),         // 4 + 1 + 3 = 8
		schema.AssistantMessage("hi there!", nil), // 4 + 3 + 3 = 10
	}
	if got := EstimateMessages(msgs); got != 18 {
		t.Errorf("EstimateMessages = %d, want 18", got)
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{schema.UserMessage("hello world")} // 8
	if got := Remaining(msgs, 10); got != 2 {
		t.Errorf("Remaining = %d, want 2", got)
	}
	if got := Remaining(msgs, 5); got != -3 {
		t.Errorf("Remaining = %d, want -3", got)
	}
	if got := Remaining(nil, DefaultMaxContextTokens); got != DefaultMaxContextTokens {
		t.Errorf("Remaining(nil) = %d, want %d", got, DefaultMaxContextTokens)
	}
}

func TestTrimHistory(t *testing.T) {
	t.Parallel()

	// A short user message costs 4 + 1 + 1 = 6; a short assistant message
	// costs 4 + 3 + 1 = 8.
	cases := []struct {
		name     string
		fixed    []*schema.Message
		history  []*schema.Message
		max      int
		wantKept []string
	}{
		{
			name:     "fits",
			fixed:    []*schema.Message{schema.SystemMessage("sys")},
			history:  []*schema.Message{schema.UserMessage("hi"), schema.AssistantMessage("yo", nil)},
			max:      DefaultMaxContextTokens,
			wantKept: []string{"hi", "yo"},
		},
		{
			name:     "drops oldest",
			history:  []*schema.Message{schema.UserMessage("old"), schema.UserMessage("new")},
			max:      7,
			wantKept: []string{"new"},
		},
		{
			name: "drops orphaned reply",
			history: []*schema.Message{
				schema.UserMessage("q1"),
				schema.AssistantMessage("a1", nil),
				schema.UserMessage("q2"),
			},
			// q1 must go (20 > 15); a1 would then lead the history.
			max:      15,
			wantKept: []string{"q2"},
		},
		{
			name:  "empty history",
			fixed: []*schema.Message{schema.SystemMessage("sys")},
			max:   DefaultMaxContextTokens,
		},
		{
			name:    "fixed exceeds budget",
			fixed:   []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))},
			history: []*schema.Message{schema.UserMessage("a"), schema.UserMessage("b")},
			max:     6000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimHistory(tc.fixed, tc.history, tc.max)
			if len(got) != len(tc.wantKept) {
				t.Fatalf("kept %d messages, want %d", len(got), len(tc.wantKept))
			}
			for i, want := range tc.wantKept {
				if got[i].Content != want {
					t.Errorf("kept[%d] = %q, want %q", i, got[i].Content, want)
				}
			}
		})
	}
}
