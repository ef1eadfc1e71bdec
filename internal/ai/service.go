// Package ai turns pasted free-form text into structured newsletter items
// via the OpenAI chat-completions API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 30 * time.Second

// ErrNotConfigured is reported when no API key is set.
var ErrNotConfigured = errors.New("ai parsing not configured")

const parsePrompt = `Extract the newsletter items from the text below.
Respond with only a JSON array; each element has "title", "body" and
optional "url" string fields. Do not add commentary.`

// Service calls the chat-completions endpoint with a fixed extraction
// prompt. One attempt per call, no retries.
type Service struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewService returns a parsing service, or nil when apiKey is empty (the
// route then reports not-configured).
func NewService(apiKey, model string) *Service {
	if apiKey == "" {
		return nil
	}
	return &Service{
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: "https://api.openai.com/v1",
		apiKey:  apiKey,
		model:   model,
	}
}

// Parse sends text through the extraction prompt and returns the model's
// JSON content.
func (s *Service) Parse(ctx context.Context, text string) (json.RawMessage, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}

	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": parsePrompt},
			{"role": "user", "content": text},
		},
		"temperature": 0,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ai parse: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai parse: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai parse: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ai parse: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai parse: upstream returned %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("ai parse: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("ai parse: no choices returned")
	}

	content := stripCodeFence(result.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("ai parse: model returned invalid JSON")
	}
	return json.RawMessage(content), nil
}

// stripCodeFence removes a markdown ```json fence the model sometimes wraps
// its answer in despite the prompt.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
