package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Generator produces role-specific questions from a job description.
type Generator interface {
	Generate(ctx context.Context, position, jobDescription string) ([]Question, error)
}

// Completer is the chat completion call used by LLMGenerator.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

const maxGenerated = 10

const generateSystemPrompt = `You write reference check questions for phone interviews. Reply with JSON only.`

const generateUserPrompt = `Generate 8 tailored reference check questions for this position. Make them specific to the role requirements and responsibilities.

Position: %s

Job Description:
%s

Requirements:
1. Create 8 questions that dig into the specific skills and experiences needed for this role
2. Include both technical and soft skill questions relevant to the position
3. Make questions conversational and natural for a phone interview
4. Focus on examples and specific scenarios when possible

Return ONLY a JSON array with this exact format:
[
  {
    "text": "Question text here",
    "category": "intro|technical|leadership|collaboration|problem_solving|performance|growth|recommendation",
    "order_num": 1
  }
]`

// LLMGenerator asks a chat model for questions.
type LLMGenerator struct {
	llm Completer
}

func NewLLMGenerator(llm Completer) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Generate(ctx context.Context, position, jobDescription string) ([]Question, error) {
	if g == nil || g.llm == nil {
		return nil, errors.New("questions: generator not configured")
	}
	out, err := g.llm.Complete(ctx, generateSystemPrompt, fmt.Sprintf(generateUserPrompt, position, jobDescription), 1000)
	if err != nil {
		return nil, err
	}
	return ParseGenerated(out)
}

type generatedQuestion struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	OrderNum int    `json:"order_num"`
}

// ParseGenerated decodes a JSON array of {text, category, order_num}, tolerating markdown code fences.
func ParseGenerated(s string) ([]Question, error) {
	s = stripFences(s)

	var raw []generatedQuestion
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("questions: decode generated: %w", err)
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].OrderNum < raw[j].OrderNum })

	out := make([]Question, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		cat := strings.ToLower(strings.TrimSpace(r.Category))
		if cat == "" {
			cat = CategoryGeneral
		}
		out = append(out, Question{Text: text, Category: cat, Source: SourceGenerated})
		if len(out) == maxGenerated {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("questions: no generated questions")
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	// Models sometimes wrap the array in prose.
	if i, j := strings.Index(s, "["), strings.LastIndex(s, "]"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return s
}
