package calls

import (
	"fmt"
	"strings"
	"testing"

	"voiceref/internal/questions"
)

func TestSystemPrompt_ListsQuestionsInOrder(t *testing.T) {
	qs := questions.Merge(questions.StandardQuestions("Engineer"), []string{"Would you hire them again?"})
	p := systemPrompt(promptInput{
		CandidateName:  "Ada",
		Position:       "Engineer",
		Company:        "Acme",
		JobDescription: "Ship things.",
		ReferenceName:  "Charles",
		Questions:      qs,
	})

	for _, want := range []string{"Ada", "Engineer", "Acme", "Charles", "Ship things.", "10 and 20 minutes"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.Contains(p, "1. "+qs[0].Text) || !strings.Contains(p, fmt.Sprintf("%d. Would you hire them again?", len(qs))) {
		t.Fatalf("questions not numbered in order:\n%s", p)
	}
}

func TestAssistantName_Truncates(t *testing.T) {
	if got := assistantName("Ada"); got != "Reference Check - Ada" {
		t.Fatalf("unexpected name %q", got)
	}
	long := assistantName(strings.Repeat("x", 80))
	if len([]rune(long)) != 40 {
		t.Fatalf("expected 40 runes, got %d", len([]rune(long)))
	}
	if got := assistantName(" "); got != "Reference Check - Candidate" {
		t.Fatalf("unexpected fallback name %q", got)
	}
}

func TestFirstMessage_GreetsReference(t *testing.T) {
	msg := firstMessage(promptInput{CandidateName: "Ada", ReferenceName: "Charles"})
	if !strings.HasPrefix(msg, "Hello Charles,") || !strings.Contains(msg, "Ada") {
		t.Fatalf("unexpected first message %q", msg)
	}
}
