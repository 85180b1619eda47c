// Package assistant runs one chat turn: it records the user's message, assembles
// the prompt from memory and learned insights, asks the model and stores the answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/pkg/gather"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/cf-ai-ledger-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInvalidInput = errors.New("invalid input")
)

// Memory is the slice of the conversation memory a turn needs
type Memory interface {
	AddMessage(userID string, role models.Role, content string, metadata map[string]string)
	GetConversationHistory(userID string, limit int) []models.ConversationTurn
	GetFormattedContext(userID string) string
	GetConversationSummary(userID string) string
	GetPersonalizedRecommendations(userID string) []string
	GetUserPreferences(userID string) models.UserPreferences
}

// Insights supplies learned business insights for the system prompt
type Insights interface {
	GetPersonalizedInsights(userID string) []string
}

// Completer is the text-completion model
type Completer interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// Translator returns localized fixed strings
type Translator interface {
	Get(lang, messageID string, data map[string]interface{}) string
}

// Reply is the outcome of a chat turn
type Reply struct {
	Text string
	// HTML is Text rendered for Telegram's HTML parse mode
	HTML string
	// Incomplete is set when the model failed and Text is the apology
	Incomplete bool
}

// Options tunes a Service. Zero values fall back to a 2 minute timeout and 10 turns of history.
type Options struct {
	Timeout      time.Duration
	HistoryLimit int
	Metrics      *middleware.Metrics
}

// Service orchestrates chat turns
type Service struct {
	memory     Memory
	insights   Insights
	ai         Completer
	limiter    middleware.RateLimiter
	translator Translator
	opts       Options
	logger     *logrus.Logger
}

// NewService creates the chat-turn service. insights and limiter may be nil.
func NewService(memory Memory, insights Insights, ai Completer, limiter middleware.RateLimiter, translator Translator, opts Options, logger *logrus.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Service{
		memory:     memory,
		insights:   insights,
		ai:         ai,
		limiter:    limiter,
		translator: translator,
		opts:       opts,
		logger:     logger,
	}
}

// Chat handles one user message. Model failures are not returned as errors; the
// reply carries a localized apology that is also stored as an incomplete turn.
func (s *Service) Chat(ctx context.Context, userID, text string) (Reply, error) {
	log := logger.WithUser(s.logger, userID)
	s.opts.Metrics.RecordMessageReceived("text")

	text = strings.TrimSpace(text)
	if err := middleware.ValidateInput(text); err != nil {
		s.opts.Metrics.RecordMessageProcessed("invalid")
		return Reply{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.limiter != nil && !s.limiter.Allow(userID) {
		s.opts.Metrics.RecordMessageProcessed("rate_limited")
		return Reply{}, ErrRateLimited
	}

	s.memory.AddMessage(userID, models.RoleUser, text, nil)

	prefs := s.memory.GetUserPreferences(userID)
	prompt := s.gatherPrompt(ctx, userID, prefs)
	messages := append([]models.Message{{Role: models.RoleSystem, Content: prompt}}, s.history(userID)...)

	aiCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := s.ai.Complete(aiCtx, messages)
	if err == nil {
		answer = stripThinking(answer)
		if answer == "" {
			err = errors.New("empty answer")
		}
	}
	if err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("Failed to get AI response")
		apology := s.translator.Get(prefs.PreferredLanguage, i18n.MsgApology, nil)
		s.memory.AddMessage(userID, models.RoleAssistant, apology, map[string]string{
			models.MetadataIncomplete: "true",
			"error":                   err.Error(),
		})
		s.opts.Metrics.RecordMessageProcessed("error")
		return Reply{Text: apology, HTML: markdown.Escape(apology), Incomplete: true}, nil
	}

	s.memory.AddMessage(userID, models.RoleAssistant, answer, nil)
	s.opts.Metrics.RecordMessageProcessed("success")
	log.WithFields(logrus.Fields{
		"duration":      time.Since(start),
		"answer_length": len(answer),
	}).Debug("Chat turn completed")

	return Reply{Text: answer, HTML: markdown.ToTelegramHTML(answer)}, nil
}

// gatherPrompt collects the prompt fragments; a fragment that cannot be produced is left out
func (s *Service) gatherPrompt(ctx context.Context, userID string, prefs models.UserPreferences) string {
	var (
		formatted       string
		insights        []string
		summary         string
		recommendations []string
	)

	failures := gather.All(ctx,
		gather.Task{
			Name:     "context",
			Run:      guarded(func() { formatted = s.memory.GetFormattedContext(userID) }),
			Fallback: func() { formatted = "" },
		},
		gather.Task{
			Name: "insights",
			Run: guarded(func() {
				if s.insights != nil {
					insights = s.insights.GetPersonalizedInsights(userID)
				}
			}),
			Fallback: func() { insights = nil },
		},
		gather.Task{
			Name:     "summary",
			Run:      guarded(func() { summary = s.memory.GetConversationSummary(userID) }),
			Fallback: func() { summary = "" },
		},
		gather.Task{
			Name:     "recommendations",
			Run:      guarded(func() { recommendations = s.memory.GetPersonalizedRecommendations(userID) }),
			Fallback: func() { recommendations = nil },
		},
	)
	if len(failures) > 0 {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"sources": gather.Names(failures),
		}).Warn("Building prompt without some context")
	}

	return buildSystemPrompt(prefs, formatted, insights, summary, recommendations)
}

// guarded turns a panic in a prompt source into an error so the turn can continue
func guarded(fn func()) func(context.Context) error {
	return func(context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		fn()
		return nil
	}
}

// history returns recent turns as model messages, skipping answers that never completed
func (s *Service) history(userID string) []models.Message {
	turns := s.memory.GetConversationHistory(userID, s.opts.HistoryLimit)
	messages := make([]models.Message, 0, len(turns))
	for _, turn := range turns {
		if turn.Incomplete() {
			continue
		}
		messages = append(messages, models.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

func stripThinking(response string) string {
	const thinkEndTag = "</think>"
	if i := strings.LastIndex(response, thinkEndTag); i != -1 {
		response = response[i+len(thinkEndTag):]
	}
	return strings.TrimSpace(response)
}
