package orchestrator

import (
	"context"

	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/reasoning"
	"github.com/masimlabs/masim/internal/sandbox"
)

// BuildStages wires the stage functions over the reasoning client and the
// sandbox runner. outputDir is where rendered artifacts land.
func BuildStages(rc reasoning.Client, runner sandbox.Runner, outputDir string) map[domain.Stage]StageFunc {
	return map[domain.Stage]StageFunc{
		domain.StageGoalExtract: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			goal, err := rc.ExtractGoal(ctx, s.Messages)
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Goal: &goal}, nil
		},

		domain.StagePlan: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			plans, err := rc.Plan(ctx, s.Messages, s.Goal)
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Plans: plans}, nil
		},

		domain.StagePlanRevise: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			plans, err := rc.RevisePlan(ctx, s.Messages, s.Goal, s.Plans, s.PlanFeedback)
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Plans: plans}, nil
		},

		domain.StageCode: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			code, err := rc.GenerateCode(ctx, reasoning.CodeRequest{
				Messages: s.Messages,
				Goal:     s.Goal,
				Plans:    s.Plans,
				Fix:      s.NeedsFix,
				PrevCode: s.ActiveCode(),
				Stdout:   s.Stdout,
				Stderr:   s.Stderr,
			})
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Codes: []string{code}}, nil
		},

		domain.StageExecute: executeStage(runner, outputDir),

		domain.StageAnalyze: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			analysis, err := rc.Analyze(ctx, s.ActiveCode(), s.Stdout, s.Stderr)
			if err != nil {
				return domain.Update{}, err
			}
			// The counter tracks fix attempts requested, not executions
			// performed: it moves by exactly one iff the verdict is "fix".
			retry := s.Retry
			if analysis.NeedsFix {
				retry++
			}
			return domain.Update{
				NeedsFix: &analysis.NeedsFix,
				Analysis: &analysis.Findings,
				Retry:    &retry,
			}, nil
		},

		domain.StageFixPlan: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			plans, err := rc.FixPlan(ctx, reasoning.FixPlanRequest{
				Messages: s.Messages,
				Goal:     s.Goal,
				Plans:    s.Plans,
				Code:     s.ActiveCode(),
				Stdout:   s.Stdout,
				Stderr:   s.Stderr,
				Request:  s.HumanRequest,
			})
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Plans: plans}, nil
		},

		domain.StageFixCode: func(ctx context.Context, s *domain.Session) (domain.Update, error) {
			code, err := rc.GenerateCode(ctx, reasoning.CodeRequest{
				Messages:     s.Messages,
				Goal:         s.Goal,
				Plans:        s.Plans,
				Fix:          true,
				PrevCode:     s.ActiveCode(),
				Stdout:       s.Stdout,
				Stderr:       s.Stderr,
				HumanRequest: s.HumanRequest,
			})
			if err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Codes: []string{code}}, nil
		},
	}
}

// executeStage runs the active code in the sandbox. Both execution failures
// (non-zero exit) and infrastructure failures are folded into session state
// as stderr for the analyzer; neither aborts the run.
func executeStage(runner sandbox.Runner, outputDir string) StageFunc {
	return func(ctx context.Context, s *domain.Session) (domain.Update, error) {
		empty := ""

		res, err := runner.Run(ctx, s.ActiveCode(), outputDir)
		if err != nil {
			msg := err.Error()
			return domain.Update{Stdout: &empty, Stderr: &msg, OutputPath: &empty}, nil
		}

		stdout := sandbox.CleanLog(res.Stdout)
		stderr := sandbox.CleanLog(res.Stderr)
		return domain.Update{
			Stdout:     &stdout,
			Stderr:     &stderr,
			OutputPath: &res.OutputPath,
		}, nil
	}
}
