package memory

import (
	"testing"

	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []KeywordMatch
	}{
		{
			name: "case insensitive",
			text: "What about my REVENUE?",
			want: []KeywordMatch{{models.PatternRevenue, "revenue"}},
		},
		{
			name: "keyword in two categories",
			text: "late payment",
			want: []KeywordMatch{
				{models.PatternExpense, "payment"},
				{models.PatternCustomer, "payment"},
			},
		},
		{
			name: "substring match",
			text: "reorder supplies for the holidays",
			want: []KeywordMatch{
				{models.PatternVendor, "order"},
				{models.PatternSeasonal, "holiday"},
			},
		},
		{
			name: "no keywords",
			text: "hello there",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKeywords(tt.text))
		})
	}
}

func TestPatternThreshold(t *testing.T) {
	svc := newTestService(newFakeClock())

	svc.AddMessage("u1", models.RoleUser, "What about my revenue this month?", nil)
	svc.AddMessage("u1", models.RoleUser, "What about my revenue this month?", nil)
	assert.Empty(t, svc.GetPatterns("u1"))
	assert.NotContains(t, svc.GetFormattedContext("u1"), "Observed Patterns")

	svc.AddMessage("u1", models.RoleUser, "What about my revenue this month?", nil)

	out := svc.GetFormattedContext("u1")
	assert.Contains(t, out, "## Observed Patterns\n- Frequently asks about revenue")

	patterns := svc.GetPatterns("u1")
	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].Frequency)
	assert.InDelta(t, 0.3, patterns[0].Confidence, 1e-9)
}

func TestAssistantTurnsDoNotCountTowardPatterns(t *testing.T) {
	svc := newTestService(newFakeClock())

	for i := 0; i < 5; i++ {
		svc.AddMessage("u1", models.RoleAssistant, "your revenue grew", nil)
	}
	assert.Empty(t, svc.GetPatterns("u1"))
}

func TestConfidenceIsMonotonicAndCapped(t *testing.T) {
	svc := newTestService(newFakeClock())

	prev := 0.0
	for i := 1; i <= 15; i++ {
		svc.AddMessage("u1", models.RoleUser, "vendor terms", nil)
		patterns := svc.GetPatterns("u1")
		if i < DefaultMinFrequency {
			require.Empty(t, patterns)
			continue
		}
		require.Len(t, patterns, 1)
		p := patterns[0]
		assert.Equal(t, i, p.Frequency)
		assert.InDelta(t, confidenceFor(i), p.Confidence, 1e-9)
		assert.GreaterOrEqual(t, p.Confidence, prev)
		assert.LessOrEqual(t, p.Confidence, 1.0)
		prev = p.Confidence
	}
	assert.Equal(t, 1.0, prev)
}

func TestPatternsOrderedByConfidence(t *testing.T) {
	svc := newTestService(newFakeClock())

	for i := 0; i < 5; i++ {
		svc.AddMessage("u1", models.RoleUser, "supplier list", nil)
	}
	for i := 0; i < 3; i++ {
		svc.AddMessage("u1", models.RoleUser, "quarterly numbers", nil)
	}

	patterns := svc.GetPatterns("u1")
	require.Len(t, patterns, 2)
	assert.Equal(t, "supplier", patterns[0].Keyword)
	assert.Equal(t, models.PatternVendor, patterns[0].Category)
	assert.Equal(t, "quarterly", patterns[1].Keyword)
	assert.InDelta(t, 0.5, patterns[0].Confidence, 1e-9)
	assert.InDelta(t, 0.3, patterns[1].Confidence, 1e-9)
}

func TestPatternTiesHaveStableOrder(t *testing.T) {
	for run := 0; run < 20; run++ {
		svc := newTestService(newFakeClock())
		for i := 0; i < 3; i++ {
			svc.AddMessage("u1", models.RoleUser, "sales and revenue and supplier", nil)
		}

		patterns := svc.GetPatterns("u1")
		require.Len(t, patterns, 3)
		assert.Equal(t, []string{"revenue", "sales", "supplier"},
			[]string{patterns[0].Keyword, patterns[1].Keyword, patterns[2].Keyword})
		assert.Contains(t, svc.GetConversationSummary("u1"), "Most notable pattern: Frequently asks about revenue.")
	}
}

func TestRecommendationsForVendorOnly(t *testing.T) {
	svc := newTestService(newFakeClock())

	for i := 0; i < 3; i++ {
		svc.AddMessage("u5", models.RoleUser, "Which vendor should I use?", nil)
	}

	recs := svc.GetPersonalizedRecommendations("u5")
	require.Len(t, recs, 1)
	assert.Equal(t, categoryRecommendations[models.PatternVendor], recs[0])
}

func TestRecommendationsAreUniqueAndCapped(t *testing.T) {
	svc := newTestService(newFakeClock())

	svc.UpdateBusinessContext("u1", models.BusinessContextUpdate{Industry: models.StringPtr("retail")})
	svc.UpdateUserPreferences("u1", models.UserPreferencesUpdate{FocusAreas: []string{"cash flow"}})
	for i := 0; i < 3; i++ {
		// "payment" feeds two categories; "vendor" a third.
		svc.AddMessage("u1", models.RoleUser, "vendor payment", nil)
	}

	recs := svc.GetPersonalizedRecommendations("u1")
	require.Len(t, recs, maxRecommendations)
	assert.Equal(t, []string{
		categoryRecommendations[models.PatternExpense],
		categoryRecommendations[models.PatternCustomer],
		categoryRecommendations[models.PatternVendor],
	}, recs)
}

func TestRecommendationsIncludeIndustryAndFocus(t *testing.T) {
	svc := newTestService(newFakeClock())

	svc.UpdateBusinessContext("u1", models.BusinessContextUpdate{Industry: models.StringPtr("construction")})
	svc.UpdateUserPreferences("u1", models.UserPreferencesUpdate{FocusAreas: []string{"taxes", "payroll"}})

	recs := svc.GetPersonalizedRecommendations("u1")
	assert.Equal(t, []string{
		"Compare your margins against typical construction industry benchmarks.",
		"Prioritize reports on your focus areas: taxes, payroll.",
	}, recs)
	assert.Empty(t, svc.GetPersonalizedRecommendations("unknown"))
}
