package domain

import "time"

// Stage identifies one step of the orchestration graph.
type Stage string

const (
	StageGoalExtract  Stage = "goal_extract"
	StagePlan         Stage = "plan"
	StagePlanReview   Stage = "plan_review"
	StagePlanRevise   Stage = "plan_revise"
	StageCode         Stage = "code"
	StageExecute      Stage = "execute"
	StageAnalyze      Stage = "analyze"
	StageHumanReview  Stage = "human_review"
	StageHumanComment Stage = "human_comment"
	StageFixPlan      Stage = "fix_plan"
	StageFixCode      Stage = "fix_code"
	StageEnd          Stage = "end"
)

// Stages lists every stage in the graph.
var Stages = []Stage{
	StageGoalExtract, StagePlan, StagePlanReview, StagePlanRevise,
	StageCode, StageExecute, StageAnalyze,
	StageHumanReview, StageHumanComment, StageFixPlan, StageFixCode,
	StageEnd,
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// IsGate reports whether the stage suspends for external human input.
func (s Stage) IsGate() bool {
	return s == StagePlanReview || s == StageHumanReview || s == StageHumanComment
}

// Interrupt marks a suspended gate waiting for an external answer.
type Interrupt struct {
	Gate   Stage  `json:"gate"`
	Prompt string `json:"prompt"`
}

// Checkpoint is a durable snapshot of a session plus its resume position.
// Reading a checkpoint immediately after writing it reproduces the exact
// state that produced it; that property underpins crash recovery and the
// gate suspend/resume protocol.
type Checkpoint struct {
	SessionID string     `json:"session_id"`
	Session   Session    `json:"session"`
	Next      Stage      `json:"next"`
	Pending   *Interrupt `json:"pending,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
