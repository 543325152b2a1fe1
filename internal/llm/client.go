package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("llm: not configured")

// Config holds settings for an OpenAI-compatible chat completions endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completions API. It is safe for concurrent use.
type Client struct {
	client  *resty.Client
	model   string
	enabled bool
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Client{client: client, model: cfg.Model, enabled: cfg.APIKey != ""}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one system+user exchange and returns the first choice's trimmed content.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c == nil || !c.enabled {
		return "", ErrDisabled
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("llm error: status %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("llm error: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm: no choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
