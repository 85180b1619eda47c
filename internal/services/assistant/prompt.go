package assistant

import (
	"strings"

	"github.com/cf-ai-ledger-go/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const basePrompt = `You are a bookkeeping assistant for a small business. You help with revenue, expenses, invoices, customers, vendors and cash flow.
Answer using the business context below. When you are unsure about a figure, say so instead of guessing.`

var styleInstructions = map[models.CommunicationStyle]string{
	models.StyleCasual:    "Keep a friendly, conversational tone and avoid jargon.",
	models.StyleFormal:    "Use a professional, formal tone.",
	models.StyleTechnical: "Be precise and use accounting terminology; include figures and formulas where useful.",
}

// buildSystemPrompt assembles the system message; empty fragments are omitted
func buildSystemPrompt(prefs models.UserPreferences, formatted string, insights []string, summary string, recommendations []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if style, ok := styleInstructions[prefs.CommunicationStyle]; ok {
		b.WriteString("\n")
		b.WriteString(style)
	}
	if name := languageName(prefs.PreferredLanguage); name != "" {
		b.WriteString("\nReply in ")
		b.WriteString(name)
		b.WriteString(".")
	}

	if formatted = strings.TrimSpace(formatted); formatted != "" {
		b.WriteString("\n\n")
		b.WriteString(formatted)
	}
	if len(insights) > 0 {
		b.WriteString("\n\nLearned business insights:\n")
		b.WriteString(strings.Join(insights, "\n"))
	}
	if len(recommendations) > 0 {
		b.WriteString("\n\nSuggestions worth mentioning when relevant:\n")
		for _, r := range recommendations {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString("\n\nConversation so far: ")
		b.WriteString(summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// languageName renders a language code in English, e.g. "es" -> "Spanish"
func languageName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return display.English.Tags().Name(tag)
}
