package questions

import (
	"context"
	"log/slog"
	"strings"
)

// Builder merges the standard set with generated and custom questions.
type Builder struct {
	gen Generator
	log *slog.Logger
}

func NewBuilder(gen Generator, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{gen: gen, log: log}
}

// Build returns standard, then generated (or the fallback set), then custom questions.
// Blank and duplicate texts are dropped and Order is renumbered 1..n.
func (b *Builder) Build(ctx context.Context, req BuildRequest) []Question {
	out := StandardQuestions(req.Position)

	if strings.TrimSpace(req.JobDescription) != "" {
		out = append(out, b.generated(ctx, req)...)
	}
	out = append(out, customQuestions(req.Custom)...)

	return normalize(out)
}

func (b *Builder) generated(ctx context.Context, req BuildRequest) []Question {
	if b.gen == nil {
		return FallbackQuestions(req.Position)
	}
	qs, err := b.gen.Generate(ctx, req.Position, req.JobDescription)
	if err != nil || len(qs) == 0 {
		b.log.Warn("question generation failed, using fallback set", "err", err)
		return FallbackQuestions(req.Position)
	}
	return qs
}

// Merge appends custom questions to an existing set under the same rules as Build.
func Merge(existing []Question, custom []string) []Question {
	out := make([]Question, 0, len(existing)+len(custom))
	out = append(out, existing...)
	out = append(out, customQuestions(custom)...)
	return normalize(out)
}

func customQuestions(texts []string) []Question {
	out := make([]Question, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, Question{Text: t, Category: CategoryCustom, Source: SourceCustom})
	}
	return out
}

func normalize(in []Question) []Question {
	seen := make(map[string]struct{}, len(in))
	out := make([]Question, 0, len(in))
	for _, q := range in {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		key := dedupeKey(q.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		q.Order = len(out) + 1
		out = append(out, q)
	}
	return out
}

func dedupeKey(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, "?.! ")
}
