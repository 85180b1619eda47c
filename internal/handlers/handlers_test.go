package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/cf-ai-ledger-go/internal/services/ai"
	"github.com/cf-ai-ledger-go/internal/services/assistant"
	"github.com/cf-ai-ledger-go/internal/services/learning"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	"github.com/cf-ai-ledger-go/internal/services/objectstore"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/cf-ai-ledger-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	nextID   int
	failHTML bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok && b.failHTML && edit.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, c)
	b.nextID++
	return tgbotapi.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) last() string {
	texts := b.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	return f.data, f.err
}

type fakeAI struct {
	answer string
	err    error
}

func (f *fakeAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	return f.answer, f.err
}

type fakeExtractor struct {
	result map[string]any
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (map[string]any, error) {
	return f.result, f.err
}

type fakeStore struct {
	transactions []models.Transaction
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return f.transactions, nil
}

func (f *fakeStore) ListInvoices(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	return nil, nil
}

func (f *fakeStore) ListCustomers(ctx context.Context, userID string, limit int) ([]models.Customer, error) {
	return nil, nil
}

func (f *fakeStore) ListVendors(ctx context.Context, userID string, limit int) ([]models.Vendor, error) {
	return nil, nil
}

type fixture struct {
	bot       *fakeBot
	svc       Services
	ai        *fakeAI
	extractor *fakeExtractor
	store     *fakeStore
	limiter   *middleware.UserRateLimiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "es"}})
	require.NoError(t, err)

	f := &fixture{
		bot:       &fakeBot{},
		ai:        &fakeAI{},
		extractor: &fakeExtractor{},
		store:     &fakeStore{},
		limiter:   middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 2}, nil, log),
	}
	mem := memory.NewService(memory.Options{}, log)
	learner := learning.NewLearner(learning.Dependencies{
		Store:     f.store,
		Memory:    mem,
		Extractor: f.extractor,
		Objects:   objectstore.NewMemoryStore("documents"),
	}, learning.Options{}, log)

	f.svc = Services{
		Memory:    mem,
		Learner:   learner,
		Assistant: assistant.NewService(mem, learner, f.ai, f.limiter, localizer, assistant.Options{}, log),
		Localizer: localizer,
	}
	return f
}

const userID int64 = 42

func textMessage(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ana"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.Index(text, " "); i > 0 {
			length = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return msg
}

func (f *fixture) command(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, NewCommandHandler(f.bot, f.svc, logger.Discard()).HandleCommand(context.Background(), textMessage(text)))
	return f.bot.last()
}

func TestStartAndHelp(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.command(t, "/start"), "Hi Ana!")
	assert.Contains(t, f.command(t, "/help"), "/analyze")
	assert.Contains(t, f.command(t, "/bogus"), "Unknown command")
}

func TestLanguageCommand(t *testing.T) {
	f := newFixture(t)
	key := userKey(userID)

	assert.Equal(t, "Unsupported language. Available: en, es", f.command(t, "/lang de"))
	assert.Equal(t, "en", f.svc.Memory.GetUserPreferences(key).PreferredLanguage)

	assert.Equal(t, "A partir de ahora responderé en español.", f.command(t, "/lang es-MX"))
	assert.Equal(t, "es", f.svc.Memory.GetUserPreferences(key).PreferredLanguage)

	assert.Contains(t, f.command(t, "/bogus"), "Comando desconocido")
}

func TestPreferenceCommands(t *testing.T) {
	f := newFixture(t)
	key := userKey(userID)

	assert.Equal(t, "Answer style set to technical.", f.command(t, "/style Technical"))
	assert.Equal(t, models.StyleTechnical, f.svc.Memory.GetUserPreferences(key).CommunicationStyle)
	assert.Contains(t, f.command(t, "/style loud"), "Unknown style")

	assert.Equal(t, "Focus areas updated: cash flow, taxes", f.command(t, "/focus cash flow, taxes, "))
	assert.Equal(t, []string{"cash flow", "taxes"}, f.svc.Memory.GetUserPreferences(key).FocusAreas)
	assert.Equal(t, "Usage: /focus <area, area>", f.command(t, "/focus"))
}

func TestBusinessContextCommands(t *testing.T) {
	f := newFixture(t)
	key := userKey(userID)

	assert.Equal(t, "Company name set to Acme Ltd.", f.command(t, "/company Acme Ltd"))
	assert.Equal(t, "Industry set to retail.", f.command(t, "/industry retail"))
	assert.Equal(t, "Usage: /company <name>", f.command(t, "/company"))

	ctx, ok := f.svc.Memory.GetBusinessContext(key)
	require.True(t, ok)
	assert.Equal(t, "Acme Ltd", ctx.CompanyName)
	assert.Equal(t, "retail", ctx.Industry)
}

func TestSummaryAndTips(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, memory.FirstConversationGreeting, f.command(t, "/summary"))
	assert.Contains(t, f.command(t, "/tips"), "No recommendations yet")

	key := userKey(userID)
	for i := 0; i < 3; i++ {
		f.svc.Memory.AddMessage(key, models.RoleUser, "what did my vendor charge?", nil)
	}
	tips := f.command(t, "/tips")
	assert.True(t, strings.HasPrefix(tips, "Recommendations for you:\n• "), tips)
}

func TestAnalyzeInsightsAndStats(t *testing.T) {
	f := newFixture(t)
	for i, category := range []string{"Rent", "Rent", "Software", "Travel", "Meals"} {
		f.store.transactions = append(f.store.transactions, models.Transaction{
			ID: string(rune('a' + i)), Type: models.TransactionExpense, Amount: 100, Category: category, Date: time.Now(),
		})
	}

	assert.Contains(t, f.command(t, "/insights"), "haven't learned enough")
	assert.Equal(t, "Analysis complete. I found 1 patterns in your records.", f.command(t, "/analyze"))

	insights := f.command(t, "/insights")
	assert.Contains(t, insights, "Here's what I've learned about your business:")
	assert.Contains(t, insights, "Expense Categories: Top expense category is Rent at 40.0% of expenses")

	stats := f.command(t, "/stats")
	assert.Contains(t, stats, "Patterns learned: 1")
	assert.Contains(t, stats, "High confidence: 1")
	assert.NotContains(t, stats, "Last updated: -")
}

func TestExportAndForget(t *testing.T) {
	f := newFixture(t)
	key := userKey(userID)
	f.svc.Memory.AddMessage(key, models.RoleUser, "hello", nil)

	require.NoError(t, NewCommandHandler(f.bot, f.svc, logger.Discard()).HandleCommand(context.Background(), textMessage("/export")))
	doc, ok := f.bot.sent[len(f.bot.sent)-1].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Here is everything I have stored about you.", doc.Caption)

	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "export-42.json", file.Name)
	var export UserExport
	require.NoError(t, json.Unmarshal(file.Bytes, &export))
	assert.Equal(t, key, export.UserID)
	require.Len(t, export.Memory.Conversation, 1)
	assert.Equal(t, "hello", export.Memory.Conversation[0].Content)

	assert.Contains(t, f.command(t, "/forget"), "deleted everything")
	assert.Empty(t, f.svc.Memory.GetConversationHistory(key, 0))
}

func TestHandleMessageEditsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.ai.answer = "Your **cash** is fine."

	require.NoError(t, NewMessageHandler(f.bot, f.svc, logger.Discard()).HandleMessage(context.Background(), textMessage("how is my cash?")))

	require.Len(t, f.bot.sent, 2)
	placeholder := f.bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Thinking...", placeholder.Text)
	assert.Equal(t, 7, placeholder.ReplyToMessageID)

	edit := f.bot.sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, tgbotapi.ModeHTML, edit.ParseMode)
	assert.Equal(t, "Your <b>cash</b> is fine.", edit.Text)
	assert.Equal(t, 1, edit.MessageID)
}

func TestHandleMessageFallsBackToPlainText(t *testing.T) {
	f := newFixture(t)
	f.bot.failHTML = true
	f.ai.answer = "Your **cash** is fine."

	require.NoError(t, NewMessageHandler(f.bot, f.svc, logger.Discard()).HandleMessage(context.Background(), textMessage("cash?")))
	assert.Equal(t, "Your **cash** is fine.", f.bot.last())
}

func TestHandleMessageApologizesOnFailure(t *testing.T) {
	f := newFixture(t)
	f.ai.err = errors.New("upstream down")

	require.NoError(t, NewMessageHandler(f.bot, f.svc, logger.Discard()).HandleMessage(context.Background(), textMessage("cash?")))

	require.Len(t, f.bot.sent, 2)
	edit := f.bot.sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, tgbotapi.ModeHTML, edit.ParseMode)
	apology := f.svc.Localizer.Get("en", i18n.MsgApology, nil)
	assert.Equal(t, markdown.Escape(apology), edit.Text)
	assert.Contains(t, html.UnescapeString(edit.Text), "I'm sorry")
}

func TestHandleMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	f.ai.answer = "ok"
	h := NewMessageHandler(f.bot, f.svc, logger.Discard())

	for i := 0; i < 2; i++ {
		require.NoError(t, h.HandleMessage(context.Background(), textMessage("hi")))
	}
	require.NoError(t, h.HandleMessage(context.Background(), textMessage("hi again")))
	assert.Contains(t, f.bot.last(), "too fast")
}

func photoMessage(size int) *tgbotapi.Message {
	msg := textMessage("")
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", FileSize: 10},
		{FileID: "large", FileSize: size},
	}
	return msg
}

func TestHandleDocumentReportsExtractedFields(t *testing.T) {
	f := newFixture(t)
	f.extractor.result = map[string]any{"vendor": "Paper Co", "total": 42.5, "items": []any{"paper", "pens"}}
	h := NewDocumentHandler(f.bot, f.svc, fakeFetcher{data: []byte("jpg")}, 1<<20, logger.Discard())

	require.NoError(t, h.HandleDocument(context.Background(), photoMessage(100)))

	assert.Equal(t, "I read your image and extracted 3 fields:\nitems: paper, pens\ntotal: 42.5\nvendor: Paper Co", f.bot.last())
	assert.Equal(t, 1, f.svc.Learner.GetLearningStats(userKey(userID)).DocumentsProcessed)
}

func TestHandleDocumentRejectsLargeFiles(t *testing.T) {
	f := newFixture(t)
	h := NewDocumentHandler(f.bot, f.svc, fakeFetcher{data: []byte("x")}, 1<<20, logger.Discard())

	require.NoError(t, h.HandleDocument(context.Background(), photoMessage(5<<20)))
	assert.Equal(t, "That file is too large. The limit is 1 MB.", f.bot.last())

	h = NewDocumentHandler(f.bot, f.svc, fakeFetcher{err: errFileTooLarge}, 1<<20, logger.Discard())
	require.NoError(t, h.HandleDocument(context.Background(), photoMessage(0)))
	assert.Equal(t, "That file is too large. The limit is 1 MB.", f.bot.last())
}

func TestHandleDocumentExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = ai.ErrEmptyResponse
	h := NewDocumentHandler(f.bot, f.svc, fakeFetcher{data: []byte("%PDF")}, 1<<20, logger.Discard())

	msg := textMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "invoice.pdf", MimeType: "application/pdf", FileSize: 4}
	require.NoError(t, h.HandleDocument(context.Background(), msg))

	assert.Contains(t, f.bot.last(), "couldn't read that file")
	assert.Zero(t, f.svc.Learner.GetLearningStats(userKey(userID)).DocumentsProcessed)
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		mime, name string
		want       models.DocumentKind
	}{
		{"image/png", "r.png", models.KindImage},
		{"", "scan.JPG", models.KindImage},
		{"application/pdf", "inv.pdf", models.KindDocument},
		{"text/csv", "books.csv", models.KindSpreadsheet},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "x", models.KindSpreadsheet},
		{"application/octet-stream", "ledger.xlsx", models.KindSpreadsheet},
		{"", "notes", models.KindDocument},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kindFor(tt.mime, tt.name), "%s %s", tt.mime, tt.name)
	}
}

func TestDispatcherRoutesUpdates(t *testing.T) {
	f := newFixture(t)
	f.ai.answer = "hello there"
	d := NewDispatcher(f.bot, f.svc, 1<<20, logger.Discard())

	d.HandleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("/help")})
	assert.Contains(t, f.bot.last(), "Commands:")

	d.HandleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("hi")})
	assert.Equal(t, "hello there", f.bot.last())

	before := len(f.bot.sent)
	d.HandleUpdate(context.Background(), tgbotapi.Update{})
	assert.Len(t, f.bot.sent, before)
}
