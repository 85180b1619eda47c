package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.openai.com/v1"

// CustomAI talks to any OpenAI-compatible chat completions endpoint
type CustomAI struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	maxTokens   int
	temperature float64
	maxRetries  int
	timeout     time.Duration
	backoff     time.Duration
	httpClient  *http.Client
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewCustomAI creates a new OpenAI-compatible AI service
func NewCustomAI(cfg *config.AIConfig, metrics *middleware.Metrics, logger *logrus.Logger) *CustomAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.WithFields(logrus.Fields{
		"baseURL": baseURL,
		"model":   cfg.Model,
	}).Info("AI service initialized")

	return &CustomAI{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: visionModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		timeout:     timeout,
		backoff:     2 * time.Second,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// nonRetryable marks errors a retry cannot fix
type nonRetryable struct{ err error }

func (e nonRetryable) Error() string { return e.err.Error() }
func (e nonRetryable) Unwrap() error { return e.err }

// Complete gets an AI response with retry logic
func (s *CustomAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	wire := make([]map[string]any, len(messages))
	for i, msg := range messages {
		wire[i] = map[string]any{
			"role":    string(msg.Role),
			"content": msg.Content,
		}
	}

	reqBody := map[string]any{
		"model":       s.model,
		"messages":    wire,
		"temperature": s.temperature,
	}
	if s.maxTokens > 0 {
		reqBody["max_tokens"] = s.maxTokens
	}

	start := time.Now()
	out, err := s.withRetry(ctx, "complete", reqBody)
	s.record("complete", start, err)
	return out, err
}

// Extract sends the document to the vision model and parses its JSON answer
func (s *CustomAI) Extract(ctx context.Context, req ExtractionRequest) (map[string]any, error) {
	content := []map[string]any{
		{"type": "text", "text": extractionPrompt(req)},
	}
	if req.isImage() {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Data)),
			},
		})
	} else if text, ok := req.inlineText(); ok {
		content = append(content, map[string]any{"type": "text", "text": text})
	} else {
		content = append(content, map[string]any{
			"type": "file",
			"file": map[string]string{
				"filename":  req.FileName,
				"file_data": fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Data)),
			},
		})
	}

	reqBody := map[string]any{
		"model": s.visionModel,
		"messages": []map[string]any{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": content},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}
	if s.maxTokens > 0 {
		reqBody["max_tokens"] = s.maxTokens
	}

	start := time.Now()
	text, err := s.withRetry(ctx, "extract", reqBody)
	var data map[string]any
	if err == nil {
		data, err = parseJSONObject(text)
	}
	s.record("extract", start, err)
	return data, err
}

func (s *CustomAI) record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordAIRequest(operation, status, time.Since(start))
}

func (s *CustomAI) withRetry(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		response, err := s.send(ctx, jsonData, attempt)
		if err == nil {
			return response, nil
		}

		lastErr = err
		var fatal nonRetryable
		if errors.As(err, &fatal) || ctx.Err() != nil {
			return "", err
		}

		s.logger.WithFields(logrus.Fields{
			"attempt":   attempt,
			"error":     err.Error(),
			"operation": operation,
		}).Warn("AI request failed, retrying...")

		if attempt < s.maxRetries {
			// Exponential backoff: 2s, 4s, 8s
			waitTime := s.backoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// send performs a single request attempt
func (s *CustomAI) send(ctx context.Context, jsonData []byte, attempt int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", nonRetryable{fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.logger.WithFields(logrus.Fields{
		"url":     url,
		"attempt": attempt,
	}).Debug("Sending AI request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    string(body),
			"attempt": attempt,
		}).Error("AI request failed")

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return "", nonRetryable{fmt.Errorf("%w: %s", ErrModelNotFound, string(body))}
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", fmt.Errorf("AI request rate limited: %s", string(body))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Don't retry for client errors (4xx)
			return "", nonRetryable{fmt.Errorf("AI request failed with client error %d: %s", resp.StatusCode, string(body))}
		}
		return "", fmt.Errorf("AI request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("AI error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	return result.Choices[0].Message.Content, nil
}
