package ml

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

	"ReviewAnalyzer/internal/ports"
)

// ErrUnavailable marks a sentiment service that cannot be reached or is not ready.
var ErrUnavailable = errors.New("sentiment service unavailable")

// Client talks to an external inference service that hosts the sentiment model.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.SentimentModel = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Predict sends one text for classification. The service may answer with a single
// {"label","score"} object or a one-element array of them.
func (c *Client) Predict(ctx context.Context, text string) (ports.Prediction, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/classify", map[string]any{"text": text}, &raw); err != nil {
		return ports.Prediction{}, err
	}

	p, err := decodePrediction(raw)
	if err != nil {
		return ports.Prediction{}, err
	}
	return ports.Prediction{Label: p.Label, Score: p.Score}, nil
}

// Health checks that the model is loaded.
func (c *Client) Health(ctx context.Context) error {
	if c.endpoint == "" {
		return fmt.Errorf("%w: endpoint is not configured", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %s", ErrUnavailable, resp.Status)
	}
	return nil
}

func decodePrediction(raw json.RawMessage) (prediction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []prediction
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return prediction{}, fmt.Errorf("decode prediction list: %w", err)
		}
		if len(list) == 0 {
			return prediction{}, errors.New("empty prediction list")
		}
		return list[0], nil
	}

	var p prediction
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	if p.Label == "" {
		return prediction{}, errors.New("prediction has no label")
	}
	return p, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
