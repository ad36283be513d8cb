package llm

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

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/ports"
)

// ErrMisconfigured is returned when the chat backend lacks an endpoint, model or key.
var ErrMisconfigured = errors.New("chatgpt client misconfigured")

const defaultSystemPrompt = `You classify the sentiment of product reviews written in Russian or English.
Answer with a single JSON object {"label": "positive"|"neutral"|"negative", "score": <confidence 0..1>} and nothing else.`

// ChatGPTClient implements ports.SentimentModel backed by OpenAI-compatible chat APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.SentimentModel = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, timeout time.Duration) *ChatGPTClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health only validates configuration; chat APIs have no cheap readiness probe.
func (c *ChatGPTClient) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return ErrMisconfigured
	}
	return ctx.Err()
}

// Predict asks the chat model to label one review.
func (c *ChatGPTClient) Predict(ctx context.Context, text string) (ports.Prediction, error) {
	if err := c.Health(ctx); err != nil {
		return ports.Prediction{}, err
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": text},
		},
	})
	if err != nil {
		return ports.Prediction{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.Prediction{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Prediction{}, fmt.Errorf("send review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.Prediction{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return ports.Prediction{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ports.Prediction{}, errors.New("chatgpt returned no choices")
	}

	return parseAnswer(completion.Choices[0].Message.Content), nil
}

// parseAnswer reads the JSON verdict; free-form replies are passed through as the label.
func parseAnswer(content string) ports.Prediction {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var verdict struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err == nil && verdict.Label != "" {
		return ports.Prediction{Label: verdict.Label, Score: verdict.Score}
	}
	return ports.Prediction{Label: content, Score: 1}
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
