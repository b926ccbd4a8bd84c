package domain

import "testing"

func TestUpdate_ApplyAppendsMessagesAndCodes(t *testing.T) {
	s := Session{
		Messages: []Message{{Role: "user", Content: "draw a circle"}},
		Codes:    []string{"v1"},
	}

	upd := Update{
		Messages: []Message{{Role: "assistant", Content: "ok"}},
		Codes:    []string{"v2"},
	}
	upd.Apply(&s)

	if len(s.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(s.Messages))
	}
	if len(s.Codes) != 2 {
		t.Fatalf("Expected 2 codes, got %d", len(s.Codes))
	}
	if s.ActiveCode() != "v2" {
		t.Errorf("Expected active code v2, got %q", s.ActiveCode())
	}
}

func TestUpdate_ApplyReplacesScalars(t *testing.T) {
	s := Session{
		Goal:   "old goal",
		Stdout: "old stdout",
		Stderr: "old stderr",
		Retry:  1,
	}

	goal := "new goal"
	stdout := ""
	retry := 2
	upd := Update{Goal: &goal, Stdout: &stdout, Retry: &retry}
	upd.Apply(&s)

	if s.Goal != "new goal" {
		t.Errorf("Expected goal replaced, got %q", s.Goal)
	}
	if s.Stdout != "" {
		t.Errorf("Expected stdout replaced with empty string, got %q", s.Stdout)
	}
	if s.Stderr != "old stderr" {
		t.Errorf("Expected stderr untouched, got %q", s.Stderr)
	}
	if s.Retry != 2 {
		t.Errorf("Expected retry 2, got %d", s.Retry)
	}
}

func TestUpdate_ApplyReplacesPlansAndAnalysis(t *testing.T) {
	s := Session{
		Plans:    []PlanStep{{Title: "a"}, {Title: "b"}},
		Analysis: []Finding{{Issue: "old"}},
	}

	newAnalysis := []Finding{{Issue: "missing axis", Fix: "add axes"}}
	upd := Update{
		Plans:    []PlanStep{{Title: "c"}},
		Analysis: &newAnalysis,
	}
	upd.Apply(&s)

	if len(s.Plans) != 1 || s.Plans[0].Title != "c" {
		t.Errorf("Expected plans replaced, got %v", s.Plans)
	}
	if len(s.Analysis) != 1 || s.Analysis[0].Issue != "missing axis" {
		t.Errorf("Expected analysis replaced, got %v", s.Analysis)
	}
}

func TestUpdate_EmptyAnalysisClearsPriorFindings(t *testing.T) {
	s := Session{Analysis: []Finding{{Issue: "old"}}}

	empty := []Finding{}
	upd := Update{Analysis: &empty}
	upd.Apply(&s)

	if len(s.Analysis) != 0 {
		t.Errorf("Expected analysis cleared, got %v", s.Analysis)
	}
}

func TestUpdate_ZeroValueIsNoop(t *testing.T) {
	s := Session{
		Goal:     "goal",
		Messages: []Message{{Role: "user", Content: "hi"}},
		NeedsFix: true,
		Retry:    3,
	}
	before := s

	Update{}.Apply(&s)

	if s.Goal != before.Goal || s.NeedsFix != before.NeedsFix || s.Retry != before.Retry {
		t.Errorf("Expected session unchanged, got %+v", s)
	}
	if len(s.Messages) != 1 {
		t.Errorf("Expected messages unchanged, got %d", len(s.Messages))
	}
}

func TestSession_ActiveCodeEmpty(t *testing.T) {
	s := Session{}
	if s.ActiveCode() != "" {
		t.Errorf("Expected empty active code, got %q", s.ActiveCode())
	}
}
