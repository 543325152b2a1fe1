package questions

import (
	"fmt"
	"strings"
)

// StandardQuestions is the fixed set asked on every check.
func StandardQuestions(position string) []Question {
	role := strings.TrimSpace(position)
	if role == "" {
		role = "previous"
	}
	texts := []string{
		"Can you describe your working relationship with the candidate?",
		fmt.Sprintf("What were the candidate's primary responsibilities in the %s role?", role),
		"What would you say are their greatest strengths?",
		"What areas do you think they could improve?",
		"How would you rate their communication skills?",
		"How did they handle challenging situations or pressure?",
		"Would you rehire this person if given the opportunity?",
		"Is there anything else you think we should know about the candidate?",
	}
	out := make([]Question, 0, len(texts))
	for i, t := range texts {
		out = append(out, Question{Text: t, Category: CategoryStandard, Order: i + 1, Source: SourceStandard})
	}
	return out
}

// FallbackQuestions stands in for generated questions when generation fails.
func FallbackQuestions(position string) []Question {
	role := strings.ToLower(strings.TrimSpace(position))
	if role == "" {
		role = "current"
	}
	qs := []Question{
		{Text: "Can you confirm your name and relationship to the candidate?", Category: "intro"},
		{Text: "How long did you work with the candidate and in what capacity?", Category: "intro"},
		{Text: fmt.Sprintf("What specific skills and experiences made the candidate effective in their %s role?", role), Category: "technical"},
		{Text: "Can you describe how the candidate approached challenging problems or projects?", Category: "problem_solving"},
		{Text: "How would you describe the candidate's collaboration and communication style?", Category: "collaboration"},
		{Text: "What was the candidate's biggest strength in their role?", Category: "performance"},
		{Text: "Are there any areas where you think the candidate could continue to grow?", Category: "growth"},
		{Text: "Would you hire this candidate again, and would you recommend them for this type of role?", Category: "recommendation"},
	}
	for i := range qs {
		qs[i].Order = i + 1
		qs[i].Source = SourceGenerated
	}
	return qs
}
