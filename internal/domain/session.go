// Package domain contains core domain types for the Masim server.
package domain

// Message is a single entry in a session's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PlanStep is one step of an animation plan.
type PlanStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Finding is one issue/fix pair reported by the code analyzer.
type Finding struct {
	Issue string `json:"issue"`
	Fix   string `json:"fix"`
}

// Session is the durable state of one conversation-driven animation task.
// It is mutated exclusively through Update.Apply and persisted as part of a
// Checkpoint after every stage transition.
type Session struct {
	SessionID    string     `json:"session_id"`
	Messages     []Message  `json:"messages"`
	Goal         string     `json:"goal"`
	Plans        []PlanStep `json:"plans"`
	Codes        []string   `json:"codes"`
	Stdout       string     `json:"stdout"`
	Stderr       string     `json:"stderr"`
	Analysis     []Finding  `json:"analysis"`
	NeedsFix     bool       `json:"needs_fix"`
	Retry        int        `json:"retry"`
	MaxRetry     int        `json:"max_retry"`
	OutputPath   string     `json:"output_path,omitempty"`
	PlanFeedback string     `json:"plan_feedback,omitempty"`
	HumanRequest string     `json:"human_request,omitempty"`
}

// ActiveCode returns the most recent code artifact, or "" if none exists.
func (s *Session) ActiveCode() string {
	if len(s.Codes) == 0 {
		return ""
	}
	return s.Codes[len(s.Codes)-1]
}

// Update is a partial session update produced by a single stage. Nil fields
// leave the session untouched. The merge strategy is fixed per field:
// Messages and Codes are append-only, all other fields are replaced wholesale.
type Update struct {
	Goal         *string
	Plans        []PlanStep // replace
	Messages     []Message  // append
	Codes        []string   // append
	Stdout       *string
	Stderr       *string
	Analysis     *[]Finding // replace
	NeedsFix     *bool
	Retry        *int
	OutputPath   *string
	PlanFeedback *string
	HumanRequest *string
}

// Apply merges the update into the session using the per-field policy above.
func (u Update) Apply(s *Session) {
	if u.Goal != nil {
		s.Goal = *u.Goal
	}
	if u.Plans != nil {
		s.Plans = u.Plans
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.Codes = append(s.Codes, u.Codes...)
	if u.Stdout != nil {
		s.Stdout = *u.Stdout
	}
	if u.Stderr != nil {
		s.Stderr = *u.Stderr
	}
	if u.Analysis != nil {
		s.Analysis = *u.Analysis
	}
	if u.NeedsFix != nil {
		s.NeedsFix = *u.NeedsFix
	}
	if u.Retry != nil {
		s.Retry = *u.Retry
	}
	if u.OutputPath != nil {
		s.OutputPath = *u.OutputPath
	}
	if u.PlanFeedback != nil {
		s.PlanFeedback = *u.PlanFeedback
	}
	if u.HumanRequest != nil {
		s.HumanRequest = *u.HumanRequest
	}
}
