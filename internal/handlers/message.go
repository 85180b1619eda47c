package handlers

import (
	"context"
	"errors"

	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/services/assistant"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// MessageHandler answers free-text chat messages
type MessageHandler struct {
	bot    Bot
	svc    Services
	logger *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(bot Bot, svc Services, logger *logrus.Logger) *MessageHandler {
	return &MessageHandler{bot: bot, svc: svc, logger: logger}
}

// HandleMessage sends a placeholder, runs the chat turn and edits the placeholder with the answer
func (h *MessageHandler) HandleMessage(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := userKey(message.From.ID)
	lang := language(h.svc, userID)

	thinking, err := sendText(h.bot, chatID, message.MessageID, h.svc.Localizer.Get(lang, i18n.MsgProcessing, nil))
	if err != nil {
		h.logger.WithError(err).Error("Failed to send thinking message")
		return err
	}

	reply, err := h.svc.Assistant.Chat(ctx, userID, message.Text)
	switch {
	case errors.Is(err, assistant.ErrRateLimited):
		return h.edit(chatID, thinking.MessageID, h.svc.Localizer.Get(lang, i18n.MsgRateLimitExceeded, nil), "")
	case errors.Is(err, assistant.ErrInvalidInput):
		h.logger.WithError(err).WithField("user_id", userID).Warn("Input validation failed")
		return h.edit(chatID, thinking.MessageID, h.svc.Localizer.Get(lang, i18n.MsgInvalidInput, nil), "")
	case err != nil:
		return h.edit(chatID, thinking.MessageID, h.svc.Localizer.Get(lang, i18n.MsgError, nil), "")
	}

	return h.edit(chatID, thinking.MessageID, reply.Text, reply.HTML)
}

// edit replaces the placeholder, preferring HTML and falling back to plain text
func (h *MessageHandler) edit(chatID int64, messageID int, text, html string) error {
	if html != "" {
		editMsg := tgbotapi.NewEditMessageText(chatID, messageID, html)
		editMsg.ParseMode = tgbotapi.ModeHTML
		_, err := h.bot.Send(editMsg)
		if err == nil {
			return nil
		}
		h.logger.WithError(err).Warn("Failed to send HTML response, trying plain text")
	}

	editMsg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.bot.Send(editMsg); err != nil {
		h.logger.WithError(err).Error("Failed to send response")
		return err
	}
	return nil
}
