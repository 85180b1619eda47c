package handlers

import (
	"context"
	"strconv"

	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/services/assistant"
	"github.com/cf-ai-ledger-go/internal/services/learning"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Bot is the part of the Telegram API the handlers use; *tgbotapi.BotAPI implements it
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Services bundles the components the chat transport drives
type Services struct {
	Memory    *memory.Service
	Learner   *learning.Learner
	Assistant *assistant.Service
	Localizer *i18n.Localizer
	Metrics   *middleware.Metrics
}

// Dispatcher routes Telegram updates to the command, message and document handlers
type Dispatcher struct {
	commands  *CommandHandler
	messages  *MessageHandler
	documents *DocumentHandler
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewDispatcher wires the handlers. maxUpload bounds downloaded files in bytes.
func NewDispatcher(bot Bot, svc Services, maxUpload int, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		commands:  NewCommandHandler(bot, svc, logger),
		messages:  NewMessageHandler(bot, svc, logger),
		documents: NewDocumentHandler(bot, svc, newTelegramFetcher(bot, int64(maxUpload)), maxUpload, logger),
		metrics:   svc.Metrics,
		logger:    logger,
	}
}

// HandleUpdate processes one update. Errors are logged, not returned, so the
// update loop never stops on a single bad message.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	var err error
	switch {
	case msg.IsCommand():
		d.metrics.RecordCommandExecuted(msg.Command())
		err = d.commands.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0 || msg.Document != nil:
		err = d.documents.HandleDocument(ctx, msg)
	case msg.Text != "":
		err = d.messages.HandleMessage(ctx, msg)
	default:
		return
	}

	if err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": msg.Chat.ID,
			"user_id": msg.From.ID,
		}).Error("Failed to handle update")
	}
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// language returns the user's preferred reply language
func language(svc Services, userID string) string {
	return svc.Memory.GetUserPreferences(userID).PreferredLanguage
}

func sendText(bot Bot, chatID int64, replyTo int, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	return bot.Send(msg)
}

func sendHTML(bot Bot, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := bot.Send(msg)
	return err
}
