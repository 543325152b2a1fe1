package calls

import (
	"fmt"
	"strings"

	"voiceref/internal/questions"
)

type promptInput struct {
	CandidateName  string
	Position       string
	Company        string
	JobDescription string
	ReferenceName  string
	Questions      []questions.Question
}

func assistantName(candidateName string) string {
	name := strings.TrimSpace(candidateName)
	if name == "" {
		name = "Candidate"
	}
	// Vapi caps assistant names at 40 characters.
	out := "Reference Check - " + name
	if r := []rune(out); len(r) > 40 {
		out = string(r[:40])
	}
	return out
}

func firstMessage(in promptInput) string {
	ref := strings.TrimSpace(in.ReferenceName)
	if ref == "" {
		return fmt.Sprintf("Hello, this is an automated reference check call about %s. Do you have about fifteen minutes to answer a few questions?", in.CandidateName)
	}
	return fmt.Sprintf("Hello %s, this is an automated reference check call about %s. Do you have about fifteen minutes to answer a few questions?", ref, in.CandidateName)
}

func systemPrompt(in promptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional reference check interviewer calling on behalf of %s", orDefault(in.Company, "the hiring team"))
	fmt.Fprintf(&b, " about %s, who applied for the %s position.\n", in.CandidateName, orDefault(in.Position, "open"))
	if ref := strings.TrimSpace(in.ReferenceName); ref != "" {
		fmt.Fprintf(&b, "You are speaking with %s.\n", ref)
	}
	if jd := strings.TrimSpace(in.JobDescription); jd != "" {
		fmt.Fprintf(&b, "\nRole context:\n%s\n", jd)
	}

	b.WriteString("\nAsk the following questions in order, one at a time:\n")
	for i, q := range in.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
	}

	b.WriteString(`
Guidelines:
- Keep the interview between 10 and 20 minutes.
- Wait for a complete answer before moving on; ask one short follow-up when an answer is vague.
- Stay neutral. Never share your own opinion of the candidate.
- If the reference cannot talk now, thank them and end the call politely.
- When all questions are answered, thank the reference and end the call.`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
