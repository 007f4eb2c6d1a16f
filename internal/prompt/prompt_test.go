package prompt

import (
	"strings"
	"testing"
)

func TestPlanIncludesTask(t *testing.T) {
	p := Plan("build a url shortener")

	if !strings.HasPrefix(p, "User task: build a url shortener\n\n") {
		t.Errorf("prompt does not lead with the task:\n%s", p[:80])
	}
	for _, want := range []string{
		"JSON array",
		`"id": "01"`,
		"2-3 agents",
		"10-15 agents",
		"ONLY the JSON array",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPlanWithoutTask(t *testing.T) {
	p := Plan("  ")
	if strings.Contains(p, "User task:") {
		t.Error("blank task should not produce a task line")
	}
	if !strings.Contains(p, "conversation so far") {
		t.Error("prompt must still reference the conversation history")
	}
}

func TestRole(t *testing.T) {
	p := Role("Backend Engineer", "Implement the API")
	if !strings.Contains(p, "Your role: Backend Engineer - Implement the API") {
		t.Errorf("role line missing:\n%s", p)
	}
	if !strings.Contains(p, "committed automatically") {
		t.Error("prompt must state the auto-commit behavior")
	}
}
