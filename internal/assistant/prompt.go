package assistant

import (
	"strconv"
	"strings"

	"github.com/fdctax/luna/internal/rag"
)

// persona is Luna's fixed style preamble. The knowledge-base and form
// context sections are appended after it.
const persona = `You are Luna, supportive FDC tax assistant for Australian educators. Be brief (3-6 sentences), practical, cautious. Use bullets. Reference ATO. Tone: friendly mate, not formal.

Core Guidelines:
• Keep responses 3-6 sentences (use bullets for lists)
• Practical, actionable advice
• Be cautious with tax claims - reference ATO when needed
• Friendly, supportive tone (like chatting with a knowledgeable mate)
• Avoid overly formal language
• Focus on educators' specific needs and deductions

Your role:
1. Answer questions about Australian tax, ABN, GST, FDC deductions
2. Help educators understand their deductions and requirements
3. Guide them through the onboarding process
4. Be encouraging but accurate (tax compliance matters!)

IMPORTANT: Use the knowledge base information below - it contains official FDC guidance and your style guide.
`

// FormContext is the onboarding form state the CRM sends with a chat
// request. Only the fields below are rendered into the prompt.
type FormContext struct {
	// CurrentStage names the onboarding step the user is on.
	CurrentStage string `json:"currentStage,omitempty"`
	// HasABN is set once the user has an Australian Business Number.
	HasABN bool `json:"hasABN,omitempty"`
	// HasGST is set once the user is registered for GST.
	HasGST bool `json:"hasGST,omitempty"`
}

// SystemPrompt renders the system prompt for one request. The output is a
// pure function of its inputs.
func SystemPrompt(sources []rag.Result, form *FormContext) string {
	var b strings.Builder
	b.WriteString(persona)
	writeKnowledge(&b, sources)
	writeForm(&b, form)
	return b.String()
}

func writeKnowledge(b *strings.Builder, sources []rag.Result) {
	if len(sources) == 0 {
		return
	}
	b.WriteString("\n\nRelevant knowledge base information:\n")
	for i, r := range sources {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(titleOf(r.Metadata))
		b.WriteString("\n")
		b.WriteString(r.Content)
		b.WriteString("\n")
	}
}

func writeForm(b *strings.Builder, form *FormContext) {
	if form == nil {
		return
	}
	stage := form.CurrentStage
	if stage == "" {
		stage = "unknown"
	}
	b.WriteString("\n\nCurrent form context:\n- Stage: ")
	b.WriteString(stage)
	b.WriteString("\n")
	if form.HasABN {
		b.WriteString("- User has ABN\n")
	}
	if form.HasGST {
		b.WriteString("- User registered for GST\n")
	}
}

func titleOf(m rag.Metadata) string {
	if m.Title == "" {
		return "Untitled"
	}
	return m.Title
}

func categoryOf(m rag.Metadata) string {
	if m.Category == "" {
		return "Unknown"
	}
	return m.Category
}
