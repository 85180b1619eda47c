package models

import (
	"fmt"
	"time"
)

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole converts a string to a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// Message represents a chat message sent to the completion oracle
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one immutable entry of a user's conversation buffer
type ConversationTurn struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Incomplete reports whether the turn was recorded from a failed or abandoned completion
func (t ConversationTurn) Incomplete() bool {
	return t.Metadata[MetadataIncomplete] == "true"
}

// MetadataIncomplete marks assistant turns that never received a full answer
const MetadataIncomplete = "incomplete"

// BusinessContext holds the facts known about a user's business
type BusinessContext struct {
	UserID          string    `json:"user_id"`
	CompanyName     string    `json:"company_name,omitempty"`
	Industry        string    `json:"industry,omitempty"`
	BusinessType    string    `json:"business_type,omitempty"`
	RevenueRange    string    `json:"revenue_range,omitempty"`
	PrimaryCurrency string    `json:"primary_currency,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
}

// BusinessContextUpdate carries a partial BusinessContext; nil fields keep their prior value
type BusinessContextUpdate struct {
	CompanyName     *string `json:"company_name,omitempty"`
	Industry        *string `json:"industry,omitempty"`
	BusinessType    *string `json:"business_type,omitempty"`
	RevenueRange    *string `json:"revenue_range,omitempty"`
	PrimaryCurrency *string `json:"primary_currency,omitempty"`
}

// Apply merges the update into ctx
func (u BusinessContextUpdate) Apply(ctx *BusinessContext) {
	if u.CompanyName != nil {
		ctx.CompanyName = *u.CompanyName
	}
	if u.Industry != nil {
		ctx.Industry = *u.Industry
	}
	if u.BusinessType != nil {
		ctx.BusinessType = *u.BusinessType
	}
	if u.RevenueRange != nil {
		ctx.RevenueRange = *u.RevenueRange
	}
	if u.PrimaryCurrency != nil {
		ctx.PrimaryCurrency = *u.PrimaryCurrency
	}
}

// IsEmpty reports whether no field would be modified
func (u BusinessContextUpdate) IsEmpty() bool {
	return u.CompanyName == nil && u.Industry == nil && u.BusinessType == nil &&
		u.RevenueRange == nil && u.PrimaryCurrency == nil
}

// CommunicationStyle is how the assistant should phrase answers
type CommunicationStyle string

const (
	StyleCasual    CommunicationStyle = "casual"
	StyleFormal    CommunicationStyle = "formal"
	StyleTechnical CommunicationStyle = "technical"
)

// ReportFrequency is how often the user wants summaries
type ReportFrequency string

const (
	ReportDaily     ReportFrequency = "daily"
	ReportWeekly    ReportFrequency = "weekly"
	ReportMonthly   ReportFrequency = "monthly"
	ReportQuarterly ReportFrequency = "quarterly"
)

// UserPreferences holds per-user assistant preferences
type UserPreferences struct {
	UserID             string             `json:"user_id"`
	PreferredLanguage  string             `json:"preferred_language"`
	CommunicationStyle CommunicationStyle `json:"communication_style"`
	ReportFrequency    ReportFrequency    `json:"report_frequency"`
	FocusAreas         []string           `json:"focus_areas"`
	Timezone           string             `json:"timezone"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// DefaultPreferences returns the preferences a user has before any explicit update
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:             userID,
		PreferredLanguage:  "en",
		CommunicationStyle: StyleCasual,
		ReportFrequency:    ReportWeekly,
		FocusAreas:         []string{},
		Timezone:           "UTC",
	}
}

// UserPreferencesUpdate carries a partial UserPreferences; nil fields keep their prior value
type UserPreferencesUpdate struct {
	PreferredLanguage  *string             `json:"preferred_language,omitempty"`
	CommunicationStyle *CommunicationStyle `json:"communication_style,omitempty"`
	ReportFrequency    *ReportFrequency    `json:"report_frequency,omitempty"`
	FocusAreas         []string            `json:"focus_areas,omitempty"`
	Timezone           *string             `json:"timezone,omitempty"`
}

// Apply merges the update into prefs. FocusAreas is replaced as a set when non-nil.
func (u UserPreferencesUpdate) Apply(prefs *UserPreferences) {
	if u.PreferredLanguage != nil {
		prefs.PreferredLanguage = *u.PreferredLanguage
	}
	if u.CommunicationStyle != nil {
		prefs.CommunicationStyle = *u.CommunicationStyle
	}
	if u.ReportFrequency != nil {
		prefs.ReportFrequency = *u.ReportFrequency
	}
	if u.FocusAreas != nil {
		prefs.FocusAreas = dedupe(u.FocusAreas)
	}
	if u.Timezone != nil {
		prefs.Timezone = *u.Timezone
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FinancialPattern is a keyword-frequency observation derived from user messages
type FinancialPattern struct {
	UserID     string          `json:"user_id"`
	Keyword    string          `json:"keyword"`
	Pattern    string          `json:"pattern"`
	Frequency  int             `json:"frequency"`
	LastSeen   time.Time       `json:"last_seen"`
	Confidence float64         `json:"confidence"`
	Category   PatternCategory `json:"category"`
}

// ClonePatterns returns a copy of the slice that shares no backing array
func ClonePatterns(in []FinancialPattern) []FinancialPattern {
	if in == nil {
		return nil
	}
	out := make([]FinancialPattern, len(in))
	copy(out, in)
	return out
}

// StringPtr is a helper for building partial updates
func StringPtr(s string) *string {
	return &s
}
