package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	mu      sync.Mutex
	answers []string
	err     error
	block   bool
	calls   [][]models.Message
}

func (f *fakeAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	block, err := f.block, f.err
	var answer string
	if len(f.answers) > 0 {
		answer, f.answers = f.answers[0], f.answers[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return answer, err
}

func (f *fakeAI) lastSystemPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1][0].Content
}

type staticInsights []string

func (s staticInsights) GetPersonalizedInsights(string) []string { return s }

type panickingInsights struct{}

func (panickingInsights) GetPersonalizedInsights(string) []string { panic("boom") }

type fixture struct {
	svc    *Service
	ai     *fakeAI
	memory *memory.Service
}

func newFixture(t *testing.T, insights Insights, limiter middleware.RateLimiter, opts Options) *fixture {
	t.Helper()
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "es"}})
	require.NoError(t, err)

	f := &fixture{
		ai:     &fakeAI{},
		memory: memory.NewService(memory.Options{}, logger.Discard()),
	}
	f.svc = NewService(f.memory, insights, f.ai, limiter, localizer, opts, logger.Discard())
	return f
}

func TestChatStoresBothTurns(t *testing.T) {
	f := newFixture(t, staticInsights{"Revenue Patterns: Revenue is increasing", "- Average monthly revenue is 225.00"}, nil, Options{})
	f.ai.answers = []string{"Your **revenue** grew."}

	reply, err := f.svc.Chat(context.Background(), "u1", "  How is my revenue doing?  ")
	require.NoError(t, err)

	assert.False(t, reply.Incomplete)
	assert.Equal(t, "Your **revenue** grew.", reply.Text)
	assert.Equal(t, "Your <b>revenue</b> grew.", reply.HTML)

	history := f.memory.GetConversationHistory("u1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "How is my revenue doing?", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.False(t, history[1].Incomplete())

	require.Len(t, f.ai.calls, 1)
	sent := f.ai.calls[0]
	assert.Equal(t, models.RoleSystem, sent[0].Role)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "How is my revenue doing?"}, sent[len(sent)-1])
	assert.Contains(t, sent[0].Content, "Learned business insights:\nRevenue Patterns: Revenue is increasing")
}

func TestSystemPromptFollowsPreferences(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.memory.UpdateUserPreferences("u1", models.UserPreferencesUpdate{
		PreferredLanguage:  models.StringPtr("es"),
		CommunicationStyle: ptr(models.StyleFormal),
	})
	f.memory.UpdateBusinessContext("u1", models.BusinessContextUpdate{CompanyName: models.StringPtr("Acme")})
	f.ai.answers = []string{"Hola"}

	_, err := f.svc.Chat(context.Background(), "u1", "hola")
	require.NoError(t, err)

	prompt := f.ai.lastSystemPrompt()
	assert.Contains(t, prompt, "Reply in Spanish.")
	assert.Contains(t, prompt, styleInstructions[models.StyleFormal])
	assert.Contains(t, prompt, "Acme")
	assert.NotContains(t, prompt, "Learned business insights")
}

func TestChatFailureStoresIncompleteApology(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.memory.UpdateUserPreferences("u1", models.UserPreferencesUpdate{PreferredLanguage: models.StringPtr("es")})
	f.ai.err = errors.New("upstream 500")

	reply, err := f.svc.Chat(context.Background(), "u1", "¿Cuánto gasté?")
	require.NoError(t, err)

	assert.True(t, reply.Incomplete)
	assert.Contains(t, reply.Text, "Lo siento")

	history := f.memory.GetConversationHistory("u1", 0)
	require.Len(t, history, 2)
	assert.True(t, history[1].Incomplete())
	assert.Equal(t, reply.Text, history[1].Content)

	// The apology is not replayed to the model on the next turn.
	f.ai.err = nil
	f.ai.answers = []string{"ok"}
	_, err = f.svc.Chat(context.Background(), "u1", "¿Y ahora?")
	require.NoError(t, err)
	for _, m := range f.ai.calls[1] {
		assert.NotEqual(t, reply.Text, m.Content)
	}
}

func TestChatTimeoutMarksTurnIncomplete(t *testing.T) {
	f := newFixture(t, nil, nil, Options{Timeout: 20 * time.Millisecond})
	f.ai.block = true

	reply, err := f.svc.Chat(context.Background(), "u1", "slow question")
	require.NoError(t, err)
	assert.True(t, reply.Incomplete)

	history := f.memory.GetConversationHistory("u1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, context.DeadlineExceeded.Error(), history[1].Metadata["error"])
}

func TestChatEmptyAnswerIsAFailure(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.ai.answers = []string{"<think>hmm</think>   "}

	reply, err := f.svc.Chat(context.Background(), "u1", "hi")
	require.NoError(t, err)
	assert.True(t, reply.Incomplete)
}

func TestChatStripsThinking(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.ai.answers = []string{"<think>let me see</think>\nRent is your top expense."}

	reply, err := f.svc.Chat(context.Background(), "u1", "top expense?")
	require.NoError(t, err)
	assert.Equal(t, "Rent is your top expense.", reply.Text)
}

func TestChatRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})

	_, err := f.svc.Chat(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.memory.GetConversationHistory("u1", 0))
	assert.Empty(t, f.ai.calls)
}

func TestChatRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, nil, logger.Discard())
	f := newFixture(t, nil, limiter, Options{})
	f.ai.answers = []string{"first"}

	_, err := f.svc.Chat(context.Background(), "u1", "one")
	require.NoError(t, err)
	_, err = f.svc.Chat(context.Background(), "u1", "two")
	assert.ErrorIs(t, err, ErrRateLimited)

	assert.Len(t, f.memory.GetConversationHistory("u1", 0), 2)
}

func TestChatSurvivesFailingInsightSource(t *testing.T) {
	f := newFixture(t, panickingInsights{}, nil, Options{})
	f.ai.answers = []string{"fine"}

	reply, err := f.svc.Chat(context.Background(), "u1", "revenue?")
	require.NoError(t, err)
	assert.Equal(t, "fine", reply.Text)
	assert.NotContains(t, f.ai.lastSystemPrompt(), "Learned business insights")
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", languageName("en"))
	assert.Equal(t, "Spanish", languageName("es"))
	assert.Equal(t, "", languageName(""))
	assert.Equal(t, "", languageName("???"))
}

func ptr[T any](v T) *T { return &v }
