package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyResponse is returned when the provider answers without content
	ErrEmptyResponse = errors.New("no response from AI")
	// ErrModelNotFound is returned when the provider does not know the configured model
	ErrModelNotFound = errors.New("model not found")
)

// Service represents the AI service interface
type Service interface {
	// Complete answers a conversation. A leading system message carries the instructions.
	Complete(ctx context.Context, messages []models.Message) (string, error)
	// Extract pulls structured fields out of a document
	Extract(ctx context.Context, req ExtractionRequest) (map[string]any, error)
}

// ExtractionRequest describes one document to extract fields from
type ExtractionRequest struct {
	Kind     models.DocumentKind
	FileName string
	MIMEType string
	Data     []byte
	// Schema maps each field name to a short description of what to extract
	Schema map[string]string
}

// New creates the AI service for the configured provider
func New(cfg *config.AIConfig, metrics *middleware.Metrics, logger *logrus.Logger) (Service, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicAI(cfg, metrics, logger)
	case "openai", "":
		return NewCustomAI(cfg, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// maxInlineText bounds how much of a text document is sent in the prompt
const maxInlineText = 32 << 10

// isImage reports whether the document should be sent as an image
func (r ExtractionRequest) isImage() bool {
	return r.Kind == models.KindImage || strings.HasPrefix(r.MIMEType, "image/")
}

func (r ExtractionRequest) isPDF() bool {
	return r.MIMEType == "application/pdf"
}

// inlineText returns the document as prompt text when it is readable as such
func (r ExtractionRequest) inlineText() (string, bool) {
	if !utf8.Valid(r.Data) {
		return "", false
	}
	text := string(r.Data)
	if len(text) > maxInlineText {
		text = text[:maxInlineText]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	return text, true
}

// extractionPrompt asks for a single JSON object with the schema's fields
func extractionPrompt(req ExtractionRequest) string {
	fields := make([]string, 0, len(req.Schema))
	for name := range req.Schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "Extract financial data from this %s", req.Kind)
	if req.FileName != "" {
		fmt.Fprintf(&b, " (%s)", req.FileName)
	}
	b.WriteString(".\nRespond with a single JSON object and nothing else. Use these fields:\n")
	for _, name := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", name, req.Schema[name])
	}
	b.WriteString("Omit fields you cannot find.")
	return b.String()
}

const extractionSystemPrompt = "You extract structured bookkeeping data from receipts, invoices and statements. You only ever answer with JSON."

// parseJSONObject pulls the first JSON object out of a model reply
func parseJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in AI response")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extracted data: %w", err)
	}
	return out, nil
}
