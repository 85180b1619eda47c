package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/sirupsen/logrus"
)

// AnthropicAI implements the AI service on the Claude messages API
type AnthropicAI struct {
	client      anthropic.Client
	model       string
	visionModel string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewAnthropicAI creates a Claude-backed AI service
func NewAnthropicAI(cfg *config.AIConfig, metrics *middleware.Metrics, logger *logrus.Logger, extra ...option.RequestOption) (*AnthropicAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(max(cfg.MaxRetries-1, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.WithField("model", cfg.Model).Info("Anthropic AI service initialized")

	return &AnthropicAI{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

func (a *AnthropicAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	var (
		system []anthropic.TextBlockParam
		turns  []anthropic.MessageParam
	)
	for _, msg := range messages {
		text := msg.Content
		if strings.TrimSpace(text) == "" {
			continue
		}
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: text})
		case models.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	if len(turns) == 0 {
		return "", errors.New("no messages to send")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    turns,
		System:      system,
		Temperature: anthropic.Float(a.temperature),
	}

	start := time.Now()
	out, err := a.send(ctx, params)
	a.record("complete", start, err)
	return out, err
}

func (a *AnthropicAI) Extract(ctx context.Context, req ExtractionRequest) (map[string]any, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(extractionPrompt(req))}

	encoded := base64.StdEncoding.EncodeToString(req.Data)
	switch {
	case req.isImage():
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.MIMEType, encoded))
	case req.isPDF():
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded}))
	default:
		text, ok := req.inlineText()
		if !ok {
			return nil, fmt.Errorf("cannot read %s as text", req.MIMEType)
		}
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.visionModel),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Temperature: anthropic.Float(0),
	}

	start := time.Now()
	text, err := a.send(ctx, params)
	var data map[string]any
	if err == nil {
		data, err = parseJSONObject(text)
	}
	a.record("extract", start, err)
	return data, err
}

func (a *AnthropicAI) send(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Messages.New(reqCtx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, params.Model)
		}
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func (a *AnthropicAI) record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		a.logger.WithError(err).WithField("operation", operation).Warn("AI request failed")
	}
	a.metrics.RecordAIRequest(operation, status, time.Since(start))
}
