package reasoning

import (
	"strings"
	"testing"

	"github.com/masimlabs/masim/internal/domain"
)

func TestRenderPrompt_AllTemplates(t *testing.T) {
	data := map[string]string{
		"Messages":     "user: draw a circle\n",
		"Goal":         "animate a circle",
		"Plans":        "1. scene: draw the circle\n",
		"Feedback":     "make it bigger",
		"Code":         "code body",
		"Stdout":       "out",
		"Stderr":       "err",
		"Request":      "make it red",
		"HumanRequest": "make it red",
	}

	templates := []string{
		"goal_extractor.md",
		"planning_agent.md",
		"plan_reviser.md",
		"coding_agent.md",
		"coding_agent_fix.md",
		"fix_planner.md",
		"code_analyzer.md",
	}
	for _, name := range templates {
		got, err := renderPrompt(name, data)
		if err != nil {
			t.Errorf("Failed to render %s: %v", name, err)
			continue
		}
		if got == "" {
			t.Errorf("Expected non-empty prompt for %s", name)
		}
		if !strings.Contains(got, "JSON") {
			t.Errorf("Expected %s to specify a JSON response format", name)
		}
	}
}

func TestRenderPrompt_FixTemplateOmitsEmptyRequest(t *testing.T) {
	data := map[string]string{
		"Messages": "user: draw\n",
		"Goal":     "g",
		"Plans":    "1. p\n",
		"Code":     "c",
		"Stdout":   "",
		"Stderr":   "NameError",
	}

	got, err := renderPrompt("coding_agent_fix.md", data)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if strings.Contains(got, "<no value>") {
		t.Error("Expected absent request to render cleanly")
	}
}

func TestRenderPrompt_UnknownTemplate(t *testing.T) {
	if _, err := renderPrompt("missing.md", nil); err == nil {
		t.Error("Expected unknown template to fail")
	}
}

func TestFormatMessages(t *testing.T) {
	got := formatMessages([]domain.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	want := "user: hi\nassistant: hello\n"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFormatPlans(t *testing.T) {
	got := formatPlans([]domain.PlanStep{
		{Title: "scene", Description: "draw axes"},
		{Title: "motion", Description: "animate"},
	})
	want := "1. scene: draw axes\n2. motion: animate\n"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestGenerationError(t *testing.T) {
	inner := &GenerationError{Stage: "plan", Err: errEmpty{}}
	if !IsGenerationError(inner) {
		t.Error("Expected GenerationError to be detected")
	}
	if !strings.Contains(inner.Error(), "plan") {
		t.Errorf("Expected stage in message, got %q", inner.Error())
	}
}

type errEmpty struct{}

func (errEmpty) Error() string { return "empty" }
