package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Message is one outbound email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers email. Implementations must honor ctx deadlines.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type ResendConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ResendSender sends mail through the Resend HTTP API.
type ResendSender struct {
	client *resty.Client
}

func NewResendSender(cfg ResendConfig) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("notify: resend api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &ResendSender{client: client}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("notify: recipient is required")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("resend send: status %d", resp.StatusCode())
	}
	return nil
}

// MemorySender records messages instead of sending them.
type MemorySender struct {
	mu   sync.Mutex
	sent []Message

	// Err, when set, is returned by every Send.
	Err error
}

func NewMemorySender() *MemorySender { return &MemorySender{} }

func (s *MemorySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *MemorySender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
