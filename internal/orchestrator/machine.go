// Package orchestrator implements the animation state machine: it sequences
// stage functions over session state, merges their partial updates, persists
// a checkpoint after every transition, and suspends at the two human gates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/store"
)

// ErrNotSuspended is returned when Resume is called on a session that has no
// pending interrupt.
var ErrNotSuspended = errors.New("session is not suspended at a gate")

// StageFunc is one transformation step: it reads the session and returns a
// partial update. It must not mutate the session directly.
type StageFunc func(ctx context.Context, s *domain.Session) (domain.Update, error)

// Outcome is the result of driving the machine until END or a gate.
type Outcome struct {
	Session   domain.Session
	Suspended *domain.Interrupt
}

// Machine drives the orchestration graph against checkpointed session state.
type Machine struct {
	repo   store.Repository
	stages map[domain.Stage]StageFunc
	next   map[domain.Stage]domain.Stage
}

// staticEdges are the unconditional transitions of the graph. The analyze
// stage routes conditionally and the gates route on their answers.
var staticEdges = map[domain.Stage]domain.Stage{
	domain.StageGoalExtract: domain.StagePlan,
	domain.StagePlan:        domain.StagePlanReview,
	domain.StagePlanRevise:  domain.StagePlanReview,
	domain.StageCode:        domain.StageExecute,
	domain.StageExecute:     domain.StageAnalyze,
	domain.StageFixPlan:     domain.StageFixCode,
	domain.StageFixCode:     domain.StageExecute,
}

// New builds a machine over the given stage functions. Every non-gate,
// non-terminal stage must have a function and a route; unknown or missing
// stages are rejected here rather than at run time.
func New(repo store.Repository, stages map[domain.Stage]StageFunc) (*Machine, error) {
	for stage := range stages {
		if !stage.Valid() {
			return nil, fmt.Errorf("unknown stage %q", stage)
		}
		if stage.IsGate() || stage == domain.StageEnd {
			return nil, fmt.Errorf("stage %q cannot have a stage function", stage)
		}
	}
	for _, stage := range domain.Stages {
		if stage.IsGate() || stage == domain.StageEnd {
			continue
		}
		if _, ok := stages[stage]; !ok {
			return nil, fmt.Errorf("missing stage function for %q", stage)
		}
		if _, ok := staticEdges[stage]; !ok && stage != domain.StageAnalyze {
			return nil, fmt.Errorf("missing route from %q", stage)
		}
	}
	return &Machine{repo: repo, stages: stages, next: staticEdges}, nil
}

// routeFix is the single fix predicate shared by the automatic retry loop
// and the human-requested fix loop.
func routeFix(s *domain.Session) bool {
	return s.NeedsFix && s.Retry <= s.MaxRetry
}

func (m *Machine) route(stage domain.Stage, s *domain.Session) domain.Stage {
	if stage == domain.StageAnalyze {
		switch {
		case routeFix(s):
			return domain.StageCode
		case s.NeedsFix:
			// Retry bound exhausted: terminate normally carrying the
			// last artifact; callers inspect the final analysis.
			return domain.StageEnd
		default:
			return domain.StageHumanReview
		}
	}
	return m.next[stage]
}

// Run drives the machine from the checkpoint's resume position until END or
// a gate. The checkpoint is persisted on entry and after every merged
// transition, so a crash at any boundary resumes at the recorded stage
// without re-running a stage whose output was already merged.
func (m *Machine) Run(ctx context.Context, cp *domain.Checkpoint) (Outcome, error) {
	if err := m.checkpoint(ctx, cp); err != nil {
		return Outcome{}, err
	}

	for {
		stage := cp.Next

		if stage == domain.StageEnd {
			slog.Info("Session run finished", "session_id", cp.SessionID, "retry", cp.Session.Retry)
			return Outcome{Session: cp.Session}, nil
		}

		if stage.IsGate() {
			intr := &domain.Interrupt{Gate: stage, Prompt: gatePrompt(stage)}
			cp.Pending = intr
			if err := m.checkpoint(ctx, cp); err != nil {
				return Outcome{}, err
			}
			slog.Info("Session suspended at gate", "session_id", cp.SessionID, "gate", stage)
			return Outcome{Session: cp.Session, Suspended: intr}, nil
		}

		fn := m.stages[stage]
		slog.Info("Running stage", "session_id", cp.SessionID, "stage", stage)
		upd, err := fn(ctx, &cp.Session)
		if err != nil {
			return Outcome{}, fmt.Errorf("stage %s: %w", stage, err)
		}

		upd.Apply(&cp.Session)
		cp.Next = m.route(stage, &cp.Session)
		cp.Pending = nil
		if err := m.checkpoint(ctx, cp); err != nil {
			return Outcome{}, err
		}
	}
}

// Resume answers a pending gate and continues the run. An unrecognized
// accept/reject token re-issues the same suspend without advancing.
func (m *Machine) Resume(ctx context.Context, cp *domain.Checkpoint, answer string) (Outcome, error) {
	if cp.Pending == nil {
		return Outcome{}, ErrNotSuspended
	}

	switch cp.Pending.Gate {
	case domain.StagePlanReview:
		feedback := strings.TrimSpace(answer)
		if feedback == "" {
			cp.Next = domain.StageCode
		} else {
			upd := domain.Update{PlanFeedback: &feedback}
			upd.Apply(&cp.Session)
			cp.Next = domain.StagePlanRevise
		}

	case domain.StageHumanReview:
		switch strings.ToUpper(strings.TrimSpace(answer)) {
		case "N":
			// No changes wanted: accept.
			cp.Next = domain.StageEnd
		case "Y":
			// Changes wanted: collect the request next.
			cp.Next = domain.StageHumanComment
		default:
			slog.Info("Unrecognized review answer, re-issuing gate",
				"session_id", cp.SessionID, "answer", answer)
			return Outcome{Session: cp.Session, Suspended: cp.Pending}, nil
		}

	case domain.StageHumanComment:
		request := strings.TrimSpace(answer)
		needsFix := true
		upd := domain.Update{HumanRequest: &request, NeedsFix: &needsFix}
		upd.Apply(&cp.Session)
		cp.Next = domain.StageFixPlan

	default:
		return Outcome{}, fmt.Errorf("checkpoint pending on non-gate stage %q", cp.Pending.Gate)
	}

	cp.Pending = nil
	return m.Run(ctx, cp)
}

func (m *Machine) checkpoint(ctx context.Context, cp *domain.Checkpoint) error {
	cp.UpdatedAt = time.Now()
	if err := m.repo.PutCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

func gatePrompt(gate domain.Stage) string {
	switch gate {
	case domain.StagePlanReview:
		return "Review the proposed plan. Reply with feedback to revise it, or an empty reply to approve."
	case domain.StageHumanReview:
		return "Do you want any changes to the generated animation? Reply Y or N."
	case domain.StageHumanComment:
		return "Describe the changes you want."
	default:
		return ""
	}
}
