package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/masimlabs/masim/internal/config"
	"github.com/masimlabs/masim/internal/domain"
)

// Tagged response shapes per stage, validated at the boundary. A response
// that does not decode into its shape, or decodes empty, is a GenerationError.
type goalResponse struct {
	Goal string `json:"goal"`
}

type planResponse struct {
	Plans []domain.PlanStep `json:"plans"`
}

type codeResponse struct {
	Code string `json:"code"`
}

type analysisResponse struct {
	NeedFix  bool             `json:"need_fix"`
	Analysis []domain.Finding `json:"analysis"`
}

// OpenAIClient implements Client against an OpenAI-compatible chat API
// using JSON-mode structured output.
type OpenAIClient struct {
	api            *openai.Client
	fastModel      string
	codeModel      string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewOpenAIClient builds a reasoning client from configuration.
func NewOpenAIClient(cfg config.ReasoningConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		api:            openai.NewClientWithConfig(apiCfg),
		fastModel:      cfg.FastModel,
		codeModel:      cfg.CodeModel,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
}

// completeJSON renders the named prompt, asks the model for a JSON object,
// and decodes it into out.
func (c *OpenAIClient) completeJSON(ctx context.Context, stage, model, promptName string, data, out interface{}) error {
	prompt, err := renderPrompt(promptName, data)
	if err != nil {
		return &GenerationError{Stage: stage, Err: err}
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return &GenerationError{Stage: stage, Err: err}
	}
	if len(resp.Choices) == 0 {
		return &GenerationError{Stage: stage, Err: fmt.Errorf("response has no choices")}
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &GenerationError{Stage: stage, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("reasoning call completed", "stage", stage, "model", model, "duration", time.Since(started))
	return nil
}

// ExtractGoal distills the conversation into a single goal statement.
func (c *OpenAIClient) ExtractGoal(ctx context.Context, messages []domain.Message) (string, error) {
	var resp goalResponse
	data := map[string]string{"Messages": formatMessages(messages)}
	if err := c.completeJSON(ctx, "goal_extract", c.fastModel, "goal_extractor.md", data, &resp); err != nil {
		return "", err
	}
	if resp.Goal == "" {
		return "", &GenerationError{Stage: "goal_extract", Err: fmt.Errorf("empty goal")}
	}
	return resp.Goal, nil
}

// Plan produces an ordered animation plan for the goal.
func (c *OpenAIClient) Plan(ctx context.Context, messages []domain.Message, goal string) ([]domain.PlanStep, error) {
	var resp planResponse
	data := map[string]string{"Messages": formatMessages(messages), "Goal": goal}
	if err := c.completeJSON(ctx, "plan", c.fastModel, "planning_agent.md", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Plans) == 0 {
		return nil, &GenerationError{Stage: "plan", Err: fmt.Errorf("empty plan")}
	}
	return resp.Plans, nil
}

// RevisePlan reworks the plan according to reviewer feedback.
func (c *OpenAIClient) RevisePlan(ctx context.Context, messages []domain.Message, goal string, plans []domain.PlanStep, feedback string) ([]domain.PlanStep, error) {
	var resp planResponse
	data := map[string]string{
		"Messages": formatMessages(messages),
		"Goal":     goal,
		"Plans":    formatPlans(plans),
		"Feedback": feedback,
	}
	if err := c.completeJSON(ctx, "plan_revise", c.fastModel, "plan_reviser.md", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Plans) == 0 {
		return nil, &GenerationError{Stage: "plan_revise", Err: fmt.Errorf("empty plan")}
	}
	return resp.Plans, nil
}

// GenerateCode produces a new code artifact, or a fixed one on fix attempts.
func (c *OpenAIClient) GenerateCode(ctx context.Context, req CodeRequest) (string, error) {
	stage := "code"
	promptName := "coding_agent.md"
	data := map[string]string{
		"Messages": formatMessages(req.Messages),
		"Goal":     req.Goal,
		"Plans":    formatPlans(req.Plans),
	}
	if req.Fix {
		stage = "fix_code"
		promptName = "coding_agent_fix.md"
		data["Code"] = req.PrevCode
		data["Stdout"] = req.Stdout
		data["Stderr"] = req.Stderr
		data["HumanRequest"] = req.HumanRequest
	}

	var resp codeResponse
	if err := c.completeJSON(ctx, stage, c.codeModel, promptName, data, &resp); err != nil {
		return "", err
	}
	if resp.Code == "" {
		return "", &GenerationError{Stage: stage, Err: fmt.Errorf("empty code")}
	}
	return resp.Code, nil
}

// FixPlan revises the plan to incorporate a human fix request.
func (c *OpenAIClient) FixPlan(ctx context.Context, req FixPlanRequest) ([]domain.PlanStep, error) {
	var resp planResponse
	data := map[string]string{
		"Messages": formatMessages(req.Messages),
		"Goal":     req.Goal,
		"Plans":    formatPlans(req.Plans),
		"Code":     req.Code,
		"Stdout":   req.Stdout,
		"Stderr":   req.Stderr,
		"Request":  req.Request,
	}
	if err := c.completeJSON(ctx, "fix_plan", c.fastModel, "fix_planner.md", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Plans) == 0 {
		return nil, &GenerationError{Stage: "fix_plan", Err: fmt.Errorf("empty plan")}
	}
	return resp.Plans, nil
}

// Analyze inspects code and execution output and decides whether a fix
// attempt is needed.
func (c *OpenAIClient) Analyze(ctx context.Context, code, stdout, stderr string) (Analysis, error) {
	var resp analysisResponse
	data := map[string]string{"Code": code, "Stdout": stdout, "Stderr": stderr}
	if err := c.completeJSON(ctx, "analyze", c.codeModel, "code_analyzer.md", data, &resp); err != nil {
		return Analysis{}, err
	}
	return Analysis{NeedsFix: resp.NeedFix, Findings: resp.Analysis}, nil
}

var _ Client = (*OpenAIClient)(nil)
