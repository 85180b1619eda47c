package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// CommandHandler handles telegram commands
type CommandHandler struct {
	bot    Bot
	svc    Services
	logger *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(bot Bot, svc Services, logger *logrus.Logger) *CommandHandler {
	return &CommandHandler{bot: bot, svc: svc, logger: logger}
}

// HandleCommand processes telegram commands
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := userKey(message.From.ID)
	args := strings.TrimSpace(message.CommandArguments())
	lang := language(h.svc, userID)

	switch message.Command() {
	case "start":
		return h.reply(chatID, lang, i18n.MsgWelcome, map[string]interface{}{"Name": message.From.FirstName})
	case "help":
		return h.reply(chatID, lang, i18n.MsgHelp, nil)
	case "summary":
		_, err := sendText(h.bot, chatID, 0, h.svc.Memory.GetConversationSummary(userID))
		return err
	case "tips":
		return h.handleTips(chatID, userID, lang)
	case "insights":
		return h.handleInsights(chatID, userID, lang)
	case "analyze":
		return h.handleAnalyze(ctx, chatID, userID, lang)
	case "stats":
		return h.handleStats(chatID, userID, lang)
	case "export":
		return h.handleExport(chatID, userID, lang)
	case "forget":
		deleteUser(h.svc, userID)
		h.logger.WithField("user_id", userID).Info("User data deleted on request")
		return h.reply(chatID, lang, i18n.MsgDataDeleted, nil)
	case "lang":
		return h.handleLanguage(chatID, userID, lang, args)
	case "style":
		return h.handleStyle(chatID, userID, lang, args)
	case "focus":
		return h.handleFocus(chatID, userID, lang, args)
	case "company":
		if args == "" {
			return h.usage(chatID, lang, "/company <name>")
		}
		h.svc.Memory.UpdateBusinessContext(userID, models.BusinessContextUpdate{CompanyName: models.StringPtr(args)})
		return h.reply(chatID, lang, i18n.MsgCompanyUpdated, map[string]interface{}{"Name": args})
	case "industry":
		if args == "" {
			return h.usage(chatID, lang, "/industry <industry>")
		}
		h.svc.Memory.UpdateBusinessContext(userID, models.BusinessContextUpdate{Industry: models.StringPtr(args)})
		return h.reply(chatID, lang, i18n.MsgIndustryUpdated, map[string]interface{}{"Industry": args})
	default:
		return h.reply(chatID, lang, i18n.MsgUnknownCommand, nil)
	}
}

func (h *CommandHandler) reply(chatID int64, lang, messageID string, data map[string]interface{}) error {
	_, err := sendText(h.bot, chatID, 0, h.svc.Localizer.Get(lang, messageID, data))
	return err
}

func (h *CommandHandler) usage(chatID int64, lang, usage string) error {
	return h.reply(chatID, lang, i18n.MsgUsage, map[string]interface{}{"Usage": usage})
}

func (h *CommandHandler) handleTips(chatID int64, userID, lang string) error {
	tips := h.svc.Memory.GetPersonalizedRecommendations(userID)
	if len(tips) == 0 {
		return h.reply(chatID, lang, i18n.MsgNoTips, nil)
	}
	text := h.svc.Localizer.Get(lang, i18n.MsgTipsHeader, nil) + "\n• " + strings.Join(tips, "\n• ")
	_, err := sendText(h.bot, chatID, 0, text)
	return err
}

func (h *CommandHandler) handleInsights(chatID int64, userID, lang string) error {
	insights := h.svc.Learner.GetPersonalizedInsights(userID)
	if len(insights) == 0 {
		return h.reply(chatID, lang, i18n.MsgNoInsights, nil)
	}
	text := h.svc.Localizer.Get(lang, i18n.MsgInsightsHeader, nil) + "\n\n" + strings.Join(insights, "\n")
	_, err := sendText(h.bot, chatID, 0, text)
	return err
}

func (h *CommandHandler) handleAnalyze(ctx context.Context, chatID int64, userID, lang string) error {
	learnings := h.svc.Learner.AnalyzeBusinessPatterns(ctx, userID)
	if len(learnings) == 0 {
		return h.reply(chatID, lang, i18n.MsgNoInsights, nil)
	}
	return h.reply(chatID, lang, i18n.MsgAnalysisDone, map[string]interface{}{"Count": len(learnings)})
}

func (h *CommandHandler) handleStats(chatID int64, userID, lang string) error {
	stats := h.svc.Learner.GetLearningStats(userID)
	updated := "-"
	if stats.LastUpdated != nil {
		updated = stats.LastUpdated.UTC().Format("2006-01-02 15:04 UTC")
	}
	return h.reply(chatID, lang, i18n.MsgStats, map[string]interface{}{
		"Total":     stats.TotalPatterns,
		"High":      stats.HighConfidencePatterns,
		"Documents": stats.DocumentsProcessed,
		"Updated":   updated,
	})
}

func (h *CommandHandler) handleExport(chatID int64, userID, lang string) error {
	data, err := json.MarshalIndent(exportUser(h.svc, userID), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("export-%s.json", userID),
		Bytes: data,
	})
	doc.Caption = h.svc.Localizer.Get(lang, i18n.MsgExportReady, nil)
	_, err = h.bot.Send(doc)
	return err
}

func (h *CommandHandler) handleLanguage(chatID int64, userID, lang, args string) error {
	if args == "" || !h.svc.Localizer.Supported(args) {
		return h.reply(chatID, lang, i18n.MsgLanguageInvalid, map[string]interface{}{
			"Languages": strings.Join(h.svc.Localizer.Languages(), ", "),
		})
	}
	resolved := h.svc.Localizer.Resolve(args)
	h.svc.Memory.UpdateUserPreferences(userID, models.UserPreferencesUpdate{PreferredLanguage: &resolved})
	return h.reply(chatID, resolved, i18n.MsgLanguageChanged, nil)
}

func (h *CommandHandler) handleStyle(chatID int64, userID, lang, args string) error {
	style := models.CommunicationStyle(strings.ToLower(args))
	switch style {
	case models.StyleCasual, models.StyleFormal, models.StyleTechnical:
	default:
		return h.reply(chatID, lang, i18n.MsgStyleInvalid, nil)
	}
	h.svc.Memory.UpdateUserPreferences(userID, models.UserPreferencesUpdate{CommunicationStyle: &style})
	return h.reply(chatID, lang, i18n.MsgStyleChanged, map[string]interface{}{"Style": style})
}

func (h *CommandHandler) handleFocus(chatID int64, userID, lang, args string) error {
	var areas []string
	for _, area := range strings.Split(args, ",") {
		if area = strings.TrimSpace(area); area != "" {
			areas = append(areas, area)
		}
	}
	if len(areas) == 0 {
		return h.usage(chatID, lang, "/focus <area, area>")
	}
	h.svc.Memory.UpdateUserPreferences(userID, models.UserPreferencesUpdate{FocusAreas: areas})
	return h.reply(chatID, lang, i18n.MsgFocusUpdated, map[string]interface{}{"Areas": strings.Join(areas, ", ")})
}
