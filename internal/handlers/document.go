package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

var errFileTooLarge = errors.New("file too large")

// fileFetcher downloads an uploaded file's content
type fileFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

type telegramFetcher struct {
	bot      Bot
	client   *http.Client
	maxBytes int64
}

func newTelegramFetcher(bot Bot, maxBytes int64) *telegramFetcher {
	return &telegramFetcher{
		bot:      bot,
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: maxBytes,
	}
}

func (f *telegramFetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errFileTooLarge
	}
	return data, nil
}

// DocumentHandler feeds uploaded photos and files to the pattern learner
type DocumentHandler struct {
	bot       Bot
	svc       Services
	fetcher   fileFetcher
	maxUpload int
	logger    *logrus.Logger
}

// NewDocumentHandler creates a document handler
func NewDocumentHandler(bot Bot, svc Services, fetcher fileFetcher, maxUpload int, logger *logrus.Logger) *DocumentHandler {
	return &DocumentHandler{bot: bot, svc: svc, fetcher: fetcher, maxUpload: maxUpload, logger: logger}
}

type upload struct {
	fileID   string
	name     string
	mimeType string
	size     int
}

func uploadFrom(message *tgbotapi.Message) (upload, bool) {
	if n := len(message.Photo); n > 0 {
		// Telegram lists photo sizes smallest first
		photo := message.Photo[n-1]
		return upload{fileID: photo.FileID, name: "photo.jpg", mimeType: "image/jpeg", size: photo.FileSize}, true
	}
	if doc := message.Document; doc != nil {
		return upload{fileID: doc.FileID, name: doc.FileName, mimeType: doc.MimeType, size: doc.FileSize}, true
	}
	return upload{}, false
}

// kindFor classifies an upload by MIME type, falling back to the file extension
func kindFor(mimeType, fileName string) models.DocumentKind {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.KindImage
	case strings.Contains(mimeType, "spreadsheet"), strings.Contains(mimeType, "excel"), mimeType == "text/csv":
		return models.KindSpreadsheet
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".heic":
		return models.KindImage
	case ".csv", ".xls", ".xlsx", ".ods":
		return models.KindSpreadsheet
	}
	return models.KindDocument
}

// HandleDocument extracts data from an uploaded file and replies with the extracted fields
func (h *DocumentHandler) HandleDocument(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := userKey(message.From.ID)
	lang := language(h.svc, userID)

	up, ok := uploadFrom(message)
	if !ok {
		return nil
	}
	h.svc.Metrics.RecordMessageReceived("document")

	tooLarge := func() error {
		_, err := sendText(h.bot, chatID, message.MessageID, h.svc.Localizer.Get(lang, i18n.MsgFileTooLarge, map[string]interface{}{
			"Limit": h.maxUpload >> 20,
		}))
		return err
	}
	if h.maxUpload > 0 && up.size > h.maxUpload {
		return tooLarge()
	}

	log := h.logger.WithFields(logrus.Fields{"user_id": userID, "file": up.name})

	data, err := h.fetcher.Fetch(ctx, up.fileID)
	if errors.Is(err, errFileTooLarge) {
		return tooLarge()
	}
	if err != nil {
		log.WithError(err).Error("Failed to download upload")
		_, sendErr := sendText(h.bot, chatID, message.MessageID, h.svc.Localizer.Get(lang, i18n.MsgDocumentFailed, nil))
		return sendErr
	}

	kind := kindFor(up.mimeType, up.name)
	extracted, err := h.svc.Learner.ProcessMultiModalInput(ctx, userID, up.name, up.mimeType, data, kind)
	if err != nil || len(extracted) == 0 {
		if err != nil {
			log.WithError(err).Warn("Document extraction failed")
		}
		_, sendErr := sendText(h.bot, chatID, message.MessageID, h.svc.Localizer.Get(lang, i18n.MsgDocumentFailed, nil))
		return sendErr
	}

	text := h.svc.Localizer.Get(lang, i18n.MsgDocumentProcessed, map[string]interface{}{
		"Kind":  kind,
		"Count": len(extracted),
	}) + "\n" + formatFields(extracted)
	_, err = sendText(h.bot, chatID, message.MessageID, text)
	return err
}

// formatFields renders extracted fields as sorted "key: value" lines
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		value := fields[k]
		if list, ok := value.([]any); ok {
			parts := make([]string, len(list))
			for i, item := range list {
				parts[i] = fmt.Sprint(item)
			}
			value = strings.Join(parts, ", ")
		}
		fmt.Fprintf(&b, "%s: %v\n", strings.ReplaceAll(k, "_", " "), value)
	}
	return strings.TrimRight(b.String(), "\n")
}
