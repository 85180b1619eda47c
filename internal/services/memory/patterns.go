package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cf-ai-ledger-go/internal/models"
)

type patternKey struct {
	category models.PatternCategory
	keyword  string
}

type keywordGroup struct {
	category models.PatternCategory
	keywords []string
}

// Matching is a case-insensitive substring test per keyword; the frequency
// threshold and confidence scale are tuned to this granularity.
var keywordGroups = []keywordGroup{
	{models.PatternRevenue, []string{"revenue", "income", "sales", "earnings", "profit"}},
	{models.PatternExpense, []string{"expense", "cost", "spending", "bill", "payment"}},
	{models.PatternCustomer, []string{"customer", "client", "invoice", "payment"}},
	{models.PatternVendor, []string{"vendor", "supplier", "purchase", "order"}},
	{models.PatternSeasonal, []string{"monthly", "quarterly", "seasonal", "holiday", "year-end"}},
}

// KeywordMatch is one keyword found in a message
type KeywordMatch struct {
	Category models.PatternCategory
	Keyword  string
}

// MatchKeywords returns every (category, keyword) pair contained in text.
// A keyword listed under two categories matches both.
func MatchKeywords(text string) []KeywordMatch {
	lower := strings.ToLower(text)
	var out []KeywordMatch
	for _, group := range keywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, KeywordMatch{Category: group.category, Keyword: kw})
			}
		}
	}
	return out
}

func patternText(keyword string) string {
	return fmt.Sprintf("Frequently asks about %s", keyword)
}

func confidenceFor(frequency int) float64 {
	return math.Min(1, float64(frequency)/10)
}

// observePatterns counts keyword hits. Observations below the minimum
// frequency stay in the pending tally; only retained patterns are visible.
func (s *Service) observePatterns(st *userState, userID, content string, now time.Time) {
	for _, match := range MatchKeywords(content) {
		key := patternKey{category: match.Category, keyword: match.Keyword}

		if idx := st.findRetained(key); idx >= 0 {
			p := &st.patterns[idx]
			p.Frequency++
			p.LastSeen = now
			p.Confidence = confidenceFor(p.Frequency)
			continue
		}

		p, ok := st.pending[key]
		if !ok {
			p = &models.FinancialPattern{
				UserID:   userID,
				Keyword:  match.Keyword,
				Pattern:  patternText(match.Keyword),
				Category: match.Category,
			}
			st.pending[key] = p
		}
		p.Frequency++
		p.LastSeen = now
		p.Confidence = confidenceFor(p.Frequency)
	}

	for key, p := range st.pending {
		if p.Frequency >= s.minFrequency {
			st.patterns = append(st.patterns, *p)
			delete(st.pending, key)
		}
	}

	kept := st.patterns[:0]
	for _, p := range st.patterns {
		if p.Frequency >= s.minFrequency {
			kept = append(kept, p)
		}
	}
	st.patterns = kept
	sortPatterns(st.patterns)
}

func (st *userState) findRetained(key patternKey) int {
	for i := range st.patterns {
		if st.patterns[i].Category == key.category && st.patterns[i].Keyword == key.keyword {
			return i
		}
	}
	return -1
}

// GetPatterns returns the user's retained patterns, highest confidence first
func (s *Service) GetPatterns(userID string) []models.FinancialPattern {
	var out []models.FinancialPattern
	s.view(userID, func(st *userState) {
		out = models.ClonePatterns(st.patterns)
	})
	sortPatterns(out)
	if out == nil {
		return []models.FinancialPattern{}
	}
	return out
}

func sortPatterns(patterns []models.FinancialPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		if !patterns[i].LastSeen.Equal(patterns[j].LastSeen) {
			return patterns[i].LastSeen.After(patterns[j].LastSeen)
		}
		if patterns[i].Category != patterns[j].Category {
			return categoryRank(patterns[i].Category) < categoryRank(patterns[j].Category)
		}
		return patterns[i].Keyword < patterns[j].Keyword
	})
}

// categoryRank orders categories as models.PatternCategories lists them
func categoryRank(c models.PatternCategory) int {
	for i, known := range models.PatternCategories {
		if known == c {
			return i
		}
	}
	return len(models.PatternCategories)
}
