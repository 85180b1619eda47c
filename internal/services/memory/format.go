package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cf-ai-ledger-go/internal/models"
)

const (
	contextPatternLimit = 5
	contextTurnLimit    = 5
	contextTurnChars    = 100
	maxRecommendations  = 3
)

// FirstConversationGreeting is the summary for users without history
const FirstConversationGreeting = "This is our first conversation! I'm here to help you manage your finances, invoices, and business insights."

const summaryClosing = "I'm here to help with your financial questions."

var categoryRecommendations = map[models.PatternCategory]string{
	models.PatternRevenue:  "Set up automated revenue tracking and monthly forecasts to spot trends early.",
	models.PatternExpense:  "Categorize your expenses consistently to uncover cost-saving opportunities.",
	models.PatternCustomer: "Review customer payment terms and follow up on overdue invoices to improve cash flow.",
	models.PatternVendor:   "Negotiate better payment terms with your key vendors to optimize cash flow.",
	models.PatternSeasonal: "Build a seasonal budget to smooth cash flow across busy and slow periods.",
}

// GetFormattedContext renders everything known about the user as a prompt block.
// Sections without data are omitted.
func (s *Service) GetFormattedContext(userID string) string {
	var (
		bctx     *models.BusinessContext
		prefs    *models.UserPreferences
		patterns []models.FinancialPattern
		turns    []models.ConversationTurn
	)
	s.view(userID, func(st *userState) {
		if st.context != nil {
			c := *st.context
			bctx = &c
		}
		if st.prefs != nil {
			p := clonePreferences(*st.prefs)
			prefs = &p
		}
		patterns = models.ClonePatterns(st.patterns)
		turns = recentTurns(st.history, contextTurnLimit)
	})

	loc := time.UTC
	if prefs != nil {
		if l, err := time.LoadLocation(prefs.Timezone); err == nil {
			loc = l
		}
	}

	var sections []string
	if bctx != nil {
		if section := formatBusinessContext(bctx); section != "" {
			sections = append(sections, section)
		}
	}
	if prefs != nil {
		sections = append(sections, formatPreferences(prefs))
	}
	if len(patterns) > 0 {
		sections = append(sections, formatPatterns(patterns, s.minFrequency))
	}
	if len(turns) > 0 {
		sections = append(sections, formatTurns(turns, loc))
	}

	return strings.Join(sections, "\n\n")
}

func formatBusinessContext(c *models.BusinessContext) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Company", c.CompanyName)
	add("Industry", c.Industry)
	add("Business Type", c.BusinessType)
	add("Revenue Range", c.RevenueRange)
	add("Primary Currency", c.PrimaryCurrency)
	if len(lines) == 0 {
		return ""
	}
	return "## Business Context\n" + strings.Join(lines, "\n")
}

func formatPreferences(p *models.UserPreferences) string {
	lines := []string{
		"## User Preferences",
		fmt.Sprintf("- Language: %s", p.PreferredLanguage),
		fmt.Sprintf("- Communication Style: %s", p.CommunicationStyle),
		fmt.Sprintf("- Report Frequency: %s", p.ReportFrequency),
	}
	if len(p.FocusAreas) > 0 {
		lines = append(lines, fmt.Sprintf("- Focus Areas: %s", strings.Join(p.FocusAreas, ", ")))
	}
	lines = append(lines, fmt.Sprintf("- Timezone: %s", p.Timezone))
	return strings.Join(lines, "\n")
}

func formatPatterns(patterns []models.FinancialPattern, minFrequency int) string {
	sortPatterns(patterns)
	lines := []string{"## Observed Patterns"}
	for _, p := range patterns {
		if p.Frequency < minFrequency {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s, seen %d times, confidence %.0f%%)",
			p.Pattern, p.Category, p.Frequency, p.Confidence*100))
		if len(lines) > contextPatternLimit {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func formatTurns(turns []models.ConversationTurn, loc *time.Location) string {
	lines := []string{"## Recent Conversation"}
	for _, t := range turns {
		label := "User"
		if t.Role == models.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			t.Timestamp.In(loc).Format("2006-01-02 15:04"), label, truncate(t.Content, contextTurnChars)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// GetPersonalizedRecommendations returns up to three advisory sentences
func (s *Service) GetPersonalizedRecommendations(userID string) []string {
	present := make(map[models.PatternCategory]bool)
	var (
		industry   string
		focusAreas []string
	)
	s.view(userID, func(st *userState) {
		for _, p := range st.patterns {
			present[p.Category] = true
		}
		if st.context != nil {
			industry = st.context.Industry
		}
		if st.prefs != nil {
			focusAreas = append(focusAreas, st.prefs.FocusAreas...)
		}
	})

	var recs []string
	for _, category := range models.PatternCategories {
		if present[category] {
			recs = append(recs, categoryRecommendations[category])
		}
	}
	if industry != "" {
		recs = append(recs, fmt.Sprintf("Compare your margins against typical %s industry benchmarks.", industry))
	}
	if len(focusAreas) > 0 {
		recs = append(recs, fmt.Sprintf("Prioritize reports on your focus areas: %s.", strings.Join(focusAreas, ", ")))
	}

	recs = uniqueStrings(recs)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// GetConversationSummary describes the conversation so far in one short paragraph
func (s *Service) GetConversationSummary(userID string) string {
	var (
		userTurns int
		hasTurns  bool
		patterns  []models.FinancialPattern
	)
	s.view(userID, func(st *userState) {
		hasTurns = len(st.history) > 0
		for _, t := range st.history {
			if t.Role == models.RoleUser {
				userTurns++
			}
		}
		patterns = models.ClonePatterns(st.patterns)
	})
	if !hasTurns {
		return FirstConversationGreeting
	}

	var b strings.Builder
	fmt.Fprintf(&b, "We've had %d %s so far.", userTurns, plural(userTurns, "message", "messages"))
	if len(patterns) > 0 {
		sortPatterns(patterns)
		fmt.Fprintf(&b, " Most notable pattern: %s.", patterns[0].Pattern)
	}
	b.WriteString(" ")
	b.WriteString(summaryClosing)
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
