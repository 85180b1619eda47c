// Package memory keeps per-user conversation state for the assistant: a bounded
// turn buffer, business facts, preferences and keyword patterns observed in
// user messages. Everything lives in process memory.
package memory

import (
	"io"
	"sync"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxMessages  = 50
	DefaultMinFrequency = 3
	DefaultRetention    = 30 * 24 * time.Hour
	DefaultHistoryLimit = 10
)

// Clock returns the current time
type Clock func() time.Time

// Options configures a Service
type Options struct {
	MaxMessages  int
	MinFrequency int
	Retention    time.Duration
	HistoryLimit int
	Clock        Clock
	Metrics      *middleware.Metrics
}

// OptionsFromConfig maps the memory section of the configuration to Options
func OptionsFromConfig(cfg *config.MemoryConfig) Options {
	return Options{
		MaxMessages:  cfg.MaxMessages,
		MinFrequency: cfg.MinFrequency,
		Retention:    cfg.Retention,
		HistoryLimit: cfg.HistoryLimit,
	}
}

// Service is the conversation memory
type Service struct {
	maxMessages  int
	minFrequency int
	retention    time.Duration
	historyLimit int
	now          Clock
	metrics      *middleware.Metrics
	logger       *logrus.Logger

	mu    sync.RWMutex
	users map[string]*userState
}

// userState is guarded by its own mutex so that mutations of one user are
// serialized without blocking other users.
type userState struct {
	mu       sync.Mutex
	removed  bool
	history  []models.ConversationTurn
	context  *models.BusinessContext
	prefs    *models.UserPreferences
	patterns []models.FinancialPattern
	pending  map[patternKey]*models.FinancialPattern
}

func (st *userState) empty() bool {
	return len(st.history) == 0 && st.context == nil && st.prefs == nil &&
		len(st.patterns) == 0 && len(st.pending) == 0
}

// NewService creates a new conversation memory
func NewService(opts Options, logger *logrus.Logger) *Service {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.MinFrequency <= 0 {
		opts.MinFrequency = DefaultMinFrequency
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger = orDiscard(logger)

	return &Service{
		maxMessages:  opts.MaxMessages,
		minFrequency: opts.MinFrequency,
		retention:    opts.Retention,
		historyLimit: opts.HistoryLimit,
		now:          opts.Clock,
		metrics:      opts.Metrics,
		logger:       logger,
		users:        make(map[string]*userState),
	}
}

// update runs fn with the user's state locked, creating the state on first write
func (s *Service) update(userID string, fn func(st *userState)) {
	for {
		s.mu.Lock()
		st, ok := s.users[userID]
		if !ok {
			st = &userState{pending: make(map[patternKey]*models.FinancialPattern)}
			s.users[userID] = st
		}
		s.mu.Unlock()

		st.mu.Lock()
		if st.removed {
			// Lost a race with DeleteUserData or the sweep; retry on a fresh state.
			st.mu.Unlock()
			continue
		}
		fn(st)
		st.mu.Unlock()
		return
	}
}

// view runs fn with the user's state locked. It reports false for unknown users.
func (s *Service) view(userID string, fn func(st *userState)) bool {
	s.mu.RLock()
	st, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.removed {
		return false
	}
	fn(st)
	return true
}

// AddMessage appends a turn to the user's conversation buffer. User turns are
// also scanned for financial keywords.
func (s *Service) AddMessage(userID string, role models.Role, content string, metadata map[string]string) {
	now := s.now()
	turn := models.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  cloneMetadata(metadata),
	}

	var retained int
	s.update(userID, func(st *userState) {
		st.history = append(st.history, turn)
		if overflow := len(st.history) - s.maxMessages; overflow > 0 {
			st.history = append([]models.ConversationTurn(nil), st.history[overflow:]...)
		}

		if role == models.RoleUser {
			s.observePatterns(st, userID, content, now)
		}
		retained = len(st.patterns)
	})

	s.metrics.RecordTurn(string(role))
	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"role":     role,
		"patterns": retained,
	}).Debug("Conversation turn recorded")
}

// GetConversationHistory returns the most recent turns, oldest first.
// A non-positive limit returns the whole buffer.
func (s *Service) GetConversationHistory(userID string, limit int) []models.ConversationTurn {
	var out []models.ConversationTurn
	s.view(userID, func(st *userState) {
		out = recentTurns(st.history, limit)
	})
	if out == nil {
		return []models.ConversationTurn{}
	}
	return out
}

func recentTurns(history []models.ConversationTurn, limit int) []models.ConversationTurn {
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]models.ConversationTurn, 0, limit)
	for _, turn := range history[len(history)-limit:] {
		turn.Metadata = cloneMetadata(turn.Metadata)
		out = append(out, turn)
	}
	return out
}

// UpdateBusinessContext merges the update into the user's business context
func (s *Service) UpdateBusinessContext(userID string, update models.BusinessContextUpdate) {
	now := s.now()
	s.update(userID, func(st *userState) {
		if st.context == nil {
			st.context = &models.BusinessContext{UserID: userID}
		}
		update.Apply(st.context)
		st.context.LastUpdated = now
	})
}

// UpdateUserPreferences merges the update into the user's preferences, starting from defaults
func (s *Service) UpdateUserPreferences(userID string, update models.UserPreferencesUpdate) {
	now := s.now()
	s.update(userID, func(st *userState) {
		if st.prefs == nil {
			prefs := models.DefaultPreferences(userID)
			st.prefs = &prefs
		}
		update.Apply(st.prefs)
		st.prefs.LastUpdated = now
	})
}

// GetBusinessContext returns a copy of the user's business context
func (s *Service) GetBusinessContext(userID string) (models.BusinessContext, bool) {
	var (
		out   models.BusinessContext
		found bool
	)
	s.view(userID, func(st *userState) {
		if st.context != nil {
			out = *st.context
			found = true
		}
	})
	return out, found
}

// GetUserPreferences returns the user's preferences, or the defaults if none were stored
func (s *Service) GetUserPreferences(userID string) models.UserPreferences {
	out := models.DefaultPreferences(userID)
	s.view(userID, func(st *userState) {
		if st.prefs != nil {
			out = clonePreferences(*st.prefs)
		}
	})
	return out
}

// UserCount returns the number of users with any stored state
func (s *Service) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func clonePreferences(p models.UserPreferences) models.UserPreferences {
	p.FocusAreas = append([]string{}, p.FocusAreas...)
	return p
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// orDiscard substitutes a silent logger for nil
func orDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	return silent
}
