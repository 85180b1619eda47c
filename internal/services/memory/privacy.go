package memory

import (
	"time"

	"github.com/cf-ai-ledger-go/internal/models"
)

// UserData is a full snapshot of what the memory holds about one user
type UserData struct {
	UserID          string                    `json:"user_id"`
	Conversation    []models.ConversationTurn `json:"conversation"`
	BusinessContext *models.BusinessContext   `json:"business_context,omitempty"`
	Preferences     *models.UserPreferences   `json:"preferences,omitempty"`
	Patterns        []models.FinancialPattern `json:"patterns"`
	ExportedAt      time.Time                 `json:"exported_at"`
}

// ExportUserData returns a copy of all state held for the user
func (s *Service) ExportUserData(userID string) UserData {
	data := UserData{
		UserID:       userID,
		Conversation: []models.ConversationTurn{},
		Patterns:     []models.FinancialPattern{},
		ExportedAt:   s.now(),
	}
	s.view(userID, func(st *userState) {
		data.Conversation = recentTurns(st.history, 0)
		if st.context != nil {
			c := *st.context
			data.BusinessContext = &c
		}
		if st.prefs != nil {
			p := clonePreferences(*st.prefs)
			data.Preferences = &p
		}
		if len(st.patterns) > 0 {
			data.Patterns = models.ClonePatterns(st.patterns)
		}
	})
	sortPatterns(data.Patterns)
	return data
}

// DeleteUserData irreversibly removes all state held for the user
func (s *Service) DeleteUserData(userID string) {
	s.mu.Lock()
	st, ok := s.users[userID]
	delete(s.users, userID)
	s.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	st.removed = true
	st.history = nil
	st.context = nil
	st.prefs = nil
	st.patterns = nil
	st.pending = nil
	st.mu.Unlock()

	s.logger.WithField("user_id", userID).Info("User memory deleted")
}
