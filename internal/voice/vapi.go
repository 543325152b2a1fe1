package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"voiceref/internal/transcript"

	"github.com/go-resty/resty/v2"
)

type VapiConfig struct {
	APIKey        string
	BaseURL       string
	PhoneNumberID string
	Timeout       time.Duration
}

// VapiClient implements Platform against the Vapi REST API.
type VapiClient struct {
	client        *resty.Client
	phoneNumberID string
}

var _ Platform = (*VapiClient)(nil)

func NewVapiClient(cfg VapiConfig) (*VapiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("voice: vapi api key is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("voice: vapi phone number id is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &VapiClient{client: client, phoneNumberID: cfg.PhoneNumberID}, nil
}

type vapiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type vapiAssistantRequest struct {
	Name  string `json:"name"`
	Model struct {
		Provider string        `json:"provider"`
		Model    string        `json:"model"`
		Messages []vapiMessage `json:"messages"`
	} `json:"model"`
	Voice struct {
		Provider string `json:"provider"`
		VoiceID  string `json:"voiceId"`
	} `json:"voice"`
	FirstMessage           string            `json:"firstMessage"`
	ServerURL              string            `json:"serverUrl,omitempty"`
	ServerURLSecret        string            `json:"serverUrlSecret,omitempty"`
	RecordingEnabled       bool              `json:"recordingEnabled"`
	EndCallFunctionEnabled bool              `json:"endCallFunctionEnabled"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

type vapiIDResponse struct {
	ID string `json:"id"`
}

func (v *VapiClient) CreateAssistant(ctx context.Context, cfg AssistantConfig) (string, error) {
	body := vapiAssistantRequest{
		Name:                   cfg.Name,
		FirstMessage:           cfg.FirstMessage,
		ServerURL:              cfg.WebhookURL,
		ServerURLSecret:        cfg.WebhookSecret,
		RecordingEnabled:       true,
		EndCallFunctionEnabled: true,
		Metadata:               cfg.Metadata,
	}
	body.Model.Provider = "openai"
	body.Model.Model = cfg.Model
	body.Model.Messages = []vapiMessage{{Role: "system", Content: cfg.SystemPrompt}}
	body.Voice.Provider = "elevenlabs"
	body.Voice.VoiceID = cfg.VoiceID

	var out vapiIDResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/assistant")
	if err != nil {
		return "", fmt.Errorf("vapi create assistant: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("vapi create assistant: status %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
	}
	if out.ID == "" {
		return "", errors.New("vapi create assistant: empty id")
	}
	return out.ID, nil
}

func (v *VapiClient) DeleteAssistant(ctx context.Context, assistantID string) error {
	resp, err := v.client.R().
		SetContext(ctx).
		SetPathParam("id", assistantID).
		Delete("/assistant/{id}")
	if err != nil {
		return fmt.Errorf("vapi delete assistant: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("vapi delete assistant: status %d", resp.StatusCode())
	}
	return nil
}

type vapiCallRequest struct {
	AssistantID   string `json:"assistantId"`
	PhoneNumberID string `json:"phoneNumberId"`
	Customer      struct {
		Number string `json:"number"`
		Name   string `json:"name,omitempty"`
	} `json:"customer"`
}

func (v *VapiClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	body := vapiCallRequest{AssistantID: req.AssistantID, PhoneNumberID: v.phoneNumberID}
	body.Customer.Number = req.PhoneNumber
	body.Customer.Name = req.CustomerName

	var out vapiIDResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/call")
	if err != nil {
		return "", fmt.Errorf("vapi place call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("vapi place call: status %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
	}
	if out.ID == "" {
		return "", errors.New("vapi place call: empty id")
	}
	return out.ID, nil
}

func (v *VapiClient) GetCall(ctx context.Context, providerCallID string) (CallRecord, error) {
	resp, err := v.client.R().
		SetContext(ctx).
		SetPathParam("id", providerCallID).
		Get("/call/{id}")
	if err != nil {
		return CallRecord{}, fmt.Errorf("vapi get call: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return CallRecord{}, ErrNotFound
	}
	if resp.IsError() {
		return CallRecord{}, fmt.Errorf("vapi get call: status %d", resp.StatusCode())
	}
	return DecodeCallRecord(resp.Body())
}

type vapiTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

type vapiCall struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	EndedReason  string          `json:"endedReason"`
	Duration     *float64        `json:"duration"`
	RecordingURL string          `json:"recordingUrl"`
	Transcript   json.RawMessage `json:"transcript"`
	Messages     []vapiTurn      `json:"messages"`
	StartedAt    *time.Time      `json:"startedAt"`
	EndedAt      *time.Time      `json:"endedAt"`
	Artifact     *struct {
		RecordingURL string     `json:"recordingUrl"`
		Messages     []vapiTurn `json:"messages"`
	} `json:"artifact"`
}

// DecodeCallRecord parses a call document. The transcript may be an array of
// role/content turns or a plain "AI: ... User: ..." string.
func DecodeCallRecord(body []byte) (CallRecord, error) {
	var c vapiCall
	if err := json.Unmarshal(body, &c); err != nil {
		return CallRecord{}, fmt.Errorf("decode call: %w", err)
	}

	rec := CallRecord{
		ID:           c.ID,
		Status:       c.Status,
		EndedReason:  c.EndedReason,
		RecordingURL: c.RecordingURL,
		StartedAt:    c.StartedAt,
		EndedAt:      c.EndedAt,
	}
	if rec.RecordingURL == "" && c.Artifact != nil {
		rec.RecordingURL = c.Artifact.RecordingURL
	}

	switch {
	case c.Duration != nil:
		rec.DurationSeconds = int(*c.Duration + 0.5)
	case c.StartedAt != nil && c.EndedAt != nil && c.EndedAt.After(*c.StartedAt):
		rec.DurationSeconds = int(c.EndedAt.Sub(*c.StartedAt).Round(time.Second) / time.Second)
	}

	rec.Transcript = decodeTurns(c)
	return rec, nil
}

func decodeTurns(c vapiCall) []transcript.Turn {
	raw := strings.TrimSpace(string(c.Transcript))
	if strings.HasPrefix(raw, "[") {
		var turns []vapiTurn
		if err := json.Unmarshal(c.Transcript, &turns); err == nil {
			return fromVapiTurns(turns)
		}
	}
	if len(c.Messages) > 0 {
		return fromVapiTurns(c.Messages)
	}
	if c.Artifact != nil && len(c.Artifact.Messages) > 0 {
		return fromVapiTurns(c.Artifact.Messages)
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(c.Transcript, &s); err == nil {
			return parseTextTranscript(s)
		}
	}
	return nil
}

func fromVapiTurns(in []vapiTurn) []transcript.Turn {
	out := make([]transcript.Turn, 0, len(in))
	for _, t := range in {
		speaker, ok := transcript.SpeakerForRole(t.Role)
		if !ok {
			continue
		}
		text := t.Content
		if text == "" {
			text = t.Text
		}
		if text == "" {
			text = t.Message
		}
		out = append(out, transcript.Turn{Speaker: speaker, Text: text})
	}
	return out
}

// parseTextTranscript splits "AI: ..." / "User: ..." lines; unlabeled lines continue the previous turn.
func parseTextTranscript(s string) []transcript.Turn {
	var out []transcript.Turn
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if label, rest, ok := strings.Cut(line, ":"); ok {
			if speaker, known := transcript.SpeakerForRole(label); known {
				out = append(out, transcript.Turn{Speaker: speaker, Text: strings.TrimSpace(rest)})
				continue
			}
		}
		if len(out) == 0 {
			out = append(out, transcript.Turn{Speaker: transcript.SpeakerReference, Text: line})
			continue
		}
		out[len(out)-1].Text += " " + line
	}
	return out
}

// truncate caps s at n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
