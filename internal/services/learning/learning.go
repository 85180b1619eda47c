// Package learning derives coarse business statistics from a user's bookkeeping
// records and uploaded documents, and feeds what it infers back into the
// conversation memory.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/internal/services/ai"
	"github.com/cf-ai-ledger-go/internal/services/cache"
	"github.com/cf-ai-ledger-go/internal/services/objectstore"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedKind is returned for a document kind without an extraction schema
var ErrUnsupportedKind = errors.New("unsupported document kind")

const (
	DefaultMinDataPoints     = 5
	DefaultMinSeasonalPoints = 12
	DefaultFetchLimit        = 1000
	DefaultFetchTimeout      = 15 * time.Second
	DefaultInsightThreshold  = 0.7
	DefaultRetention         = 30 * 24 * time.Hour

	documentBump  = 0.05
	maxConfidence = 0.95
)

// DataStore lists a user's records, newest first
type DataStore interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error)
	ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error)
	ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error)
}

// ContextUpdater receives inferred business facts
type ContextUpdater interface {
	GetBusinessContext(userID string) (models.BusinessContext, bool)
	UpdateBusinessContext(userID string, update models.BusinessContextUpdate)
}

// Extractor pulls structured fields out of a document
type Extractor interface {
	Extract(ctx context.Context, req ai.ExtractionRequest) (map[string]any, error)
}

// Options tunes the learner. Zero values fall back to the package defaults.
type Options struct {
	MinDataPoints     int
	MinSeasonalPoints int
	FetchLimit        int
	FetchTimeout      time.Duration
	ExtractTimeout    time.Duration
	InsightThreshold  float64
	Retention         time.Duration
	Clock             func() time.Time
	Metrics           *middleware.Metrics
}

// OptionsFromConfig maps the learning and memory config sections to Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinDataPoints:     cfg.Learning.MinDataPoints,
		MinSeasonalPoints: cfg.Learning.MinSeasonalPoints,
		FetchLimit:        cfg.Learning.FetchLimit,
		FetchTimeout:      cfg.Learning.FetchTimeout,
		ExtractTimeout:    cfg.AI.Timeout,
		InsightThreshold:  cfg.Learning.InsightThreshold,
		Retention:         cfg.Memory.Retention,
	}
}

func (o *Options) setDefaults() {
	if o.MinDataPoints <= 0 {
		o.MinDataPoints = DefaultMinDataPoints
	}
	if o.MinSeasonalPoints <= 0 {
		o.MinSeasonalPoints = DefaultMinSeasonalPoints
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = DefaultFetchLimit
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 60 * time.Second
	}
	if o.InsightThreshold <= 0 {
		o.InsightThreshold = DefaultInsightThreshold
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Dependencies are the collaborators the learner calls. Objects and Cache may be nil.
type Dependencies struct {
	Store     DataStore
	Memory    ContextUpdater
	Extractor Extractor
	Objects   objectstore.Store
	Cache     cache.Service
}

type learnerState struct {
	learnings []models.BusinessLearning
	documents []models.DocumentLearning
}

// Learner is the per-user pattern learner
type Learner struct {
	deps   Dependencies
	opts   Options
	logger *logrus.Logger

	mu    sync.RWMutex
	users map[string]*learnerState
}

// NewLearner creates a pattern learner
func NewLearner(deps Dependencies, opts Options, logger *logrus.Logger) *Learner {
	opts.setDefaults()
	return &Learner{
		deps:   deps,
		opts:   opts,
		logger: logger,
		users:  make(map[string]*learnerState),
	}
}

func (l *Learner) state(userID string) *learnerState {
	st, ok := l.users[userID]
	if !ok {
		st = &learnerState{}
		l.users[userID] = st
	}
	return st
}

func (l *Learner) invalidate(userID string) {
	if l.deps.Cache != nil {
		l.deps.Cache.Invalidate(userID)
	}
}

// GetLearnings returns the user's current learnings in category order
func (l *Learner) GetLearnings(userID string) []models.BusinessLearning {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st, ok := l.users[userID]
	if !ok {
		return []models.BusinessLearning{}
	}
	return cloneLearnings(st.learnings)
}

// GetPersonalizedInsights renders every learning above the confidence threshold
// as a header line followed by its insights, for use inside a system prompt.
func (l *Learner) GetPersonalizedInsights(userID string) []string {
	if l.deps.Cache != nil {
		if cached, ok := l.deps.Cache.GetInsights(userID); ok {
			return cached
		}
	}

	// The read lock spans the cache write so a concurrent update's invalidation lands after it.
	l.mu.RLock()
	defer l.mu.RUnlock()

	lines := []string{}
	if st, ok := l.users[userID]; ok {
		for _, learning := range st.learnings {
			if learning.Confidence <= l.opts.InsightThreshold {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", learning.Category.Title(), learning.Pattern))
			for _, insight := range learning.Insights {
				lines = append(lines, "- "+insight)
			}
		}
	}
	if l.deps.Cache != nil {
		l.deps.Cache.SetInsights(userID, lines)
	}
	return lines
}

// GetLearningStats summarizes what has been learned about a user
func (l *Learner) GetLearningStats(userID string) models.LearningStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stats models.LearningStats
	st, ok := l.users[userID]
	if !ok {
		return stats
	}

	var last time.Time
	for _, learning := range st.learnings {
		stats.TotalPatterns++
		if learning.Confidence > l.opts.InsightThreshold {
			stats.HighConfidencePatterns++
		}
		if learning.LastUpdated.After(last) {
			last = learning.LastUpdated
		}
	}
	for _, doc := range st.documents {
		stats.DocumentsProcessed++
		if doc.Timestamp.After(last) {
			last = doc.Timestamp
		}
	}
	if !last.IsZero() {
		stats.LastUpdated = &last
	}
	return stats
}

// LearnerData is a privacy export of a user's learner state
type LearnerData struct {
	UserID    string                    `json:"user_id"`
	Learnings []models.BusinessLearning `json:"learnings"`
	Documents []models.DocumentLearning `json:"documents"`
}

// ExportUserData snapshots the user's learnings and document log
func (l *Learner) ExportUserData(userID string) LearnerData {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data := LearnerData{
		UserID:    userID,
		Learnings: []models.BusinessLearning{},
		Documents: []models.DocumentLearning{},
	}
	if st, ok := l.users[userID]; ok {
		data.Learnings = cloneLearnings(st.learnings)
		data.Documents = append(data.Documents, st.documents...)
	}
	return data
}

// DeleteUserData removes all learner state for the user and drops cached insights
func (l *Learner) DeleteUserData(userID string) {
	l.mu.Lock()
	delete(l.users, userID)
	l.mu.Unlock()
	l.invalidate(userID)
}

// CleanExpiredData drops learnings and documents not refreshed within the retention period
func (l *Learner) CleanExpiredData() int {
	cutoff := l.opts.Clock().Add(-l.opts.Retention)

	l.mu.Lock()
	removed := 0
	var touched []string
	for userID, st := range l.users {
		before := len(st.learnings) + len(st.documents)

		learnings := st.learnings[:0]
		for _, learning := range st.learnings {
			if !learning.LastUpdated.Before(cutoff) {
				learnings = append(learnings, learning)
			}
		}
		st.learnings = learnings

		documents := st.documents[:0]
		for _, doc := range st.documents {
			if !doc.Timestamp.Before(cutoff) {
				documents = append(documents, doc)
			}
		}
		st.documents = documents

		if n := before - len(st.learnings) - len(st.documents); n > 0 {
			removed += n
			touched = append(touched, userID)
		}
		if len(st.learnings) == 0 && len(st.documents) == 0 {
			delete(l.users, userID)
		}
	}
	l.mu.Unlock()

	for _, userID := range touched {
		l.invalidate(userID)
	}
	return removed
}

func cloneLearnings(in []models.BusinessLearning) []models.BusinessLearning {
	out := make([]models.BusinessLearning, len(in))
	for i, learning := range in {
		learning.Insights = append([]string(nil), learning.Insights...)
		out[i] = learning
	}
	return out
}

func sortLearnings(learnings []models.BusinessLearning) {
	order := make(map[models.LearningCategory]int, len(models.LearningCategories))
	for i, c := range models.LearningCategories {
		order[c] = i
	}
	sort.SliceStable(learnings, func(i, j int) bool {
		return order[learnings[i].Category] < order[learnings[j].Category]
	})
}
