package transcript

import (
	"context"
	"errors"
	"strings"
)

type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerReference Speaker = "reference"
)

// Turn is one utterance in call order.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// SpeakerForRole maps a voice platform message role to a speaker.
// System and tool messages are not part of the conversation.
func SpeakerForRole(role string) (Speaker, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "bot", "ai":
		return SpeakerAssistant, true
	case "user", "customer", "reference":
		return SpeakerReference, true
	default:
		return "", false
	}
}

func (s Speaker) label() string {
	if s == SpeakerAssistant {
		return "AI"
	}
	return "Reference"
}

// Render produces the raw transcript: "AI: ..." / "Reference: ..." blocks separated by blank lines.
func Render(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		parts = append(parts, t.Speaker.label()+": "+text)
	}
	return strings.Join(parts, "\n\n")
}

// Formatter turns a raw transcript into clean question/answer text.
type Formatter interface {
	Format(ctx context.Context, raw string) (string, error)
}

// FormatOrRaw returns the formatted transcript, or raw unchanged when the formatter
// is missing, fails, or returns nothing. fellBack reports which one was returned.
func FormatOrRaw(ctx context.Context, f Formatter, raw string) (text string, fellBack bool) {
	if f == nil || strings.TrimSpace(raw) == "" {
		return raw, true
	}
	out, err := f.Format(ctx, raw)
	if err != nil || strings.TrimSpace(out) == "" {
		return raw, true
	}
	return out, false
}

// Completer is the chat completion call used by LLMFormatter.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

const formatPrompt = `You clean up phone reference check transcripts.
Rewrite the transcript as numbered question and answer pairs.
Keep the reference's answers faithful to what was said; remove filler, greetings and small talk.
Return plain text only.`

// LLMFormatter formats transcripts with a chat completion model.
type LLMFormatter struct {
	llm       Completer
	maxTokens int
}

func NewLLMFormatter(llm Completer) *LLMFormatter {
	return &LLMFormatter{llm: llm, maxTokens: 2000}
}

func (f *LLMFormatter) Format(ctx context.Context, raw string) (string, error) {
	if f == nil || f.llm == nil {
		return "", errors.New("transcript: formatter not configured")
	}
	return f.llm.Complete(ctx, formatPrompt, raw, f.maxTokens)
}
