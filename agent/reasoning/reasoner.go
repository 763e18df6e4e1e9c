package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	promptx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/prompt"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
)

var _ contractx.Reasoner = (*LLMReasoner)(nil)

// LLMReasoner classifies evidence with a chat model. Replies that do not fit
// the judgment schema are retried once with the strict prompt and then
// reported as contract.ErrMalformedJudgment.
type LLMReasoner struct {
	normalRunner  compose.Runnable[map[string]any, judgmentLLMOutput]
	strictRunner  compose.Runnable[map[string]any, judgmentLLMOutput]
	runtimeRunner compose.Runnable[contractx.JudgmentRequest, contractx.Judgment]
	allowedTools  map[string]struct{}
}

type judgmentLLMOutput struct {
	RiskLevel     string           `json:"risk_level"`
	Confidence    *float64         `json:"confidence"`
	AffectedParts []string         `json:"affected_parts"`
	Rationale     string           `json:"rationale"`
	FollowUp      []followUpOutput `json:"follow_up,omitempty"`
}

type followUpOutput struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

func NewLLMReasoner(ctx context.Context, chatModel einomodel.BaseChatModel, prompts promptx.PromptSet) (*LLMReasoner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(prompts.Investigator) == "" || strings.TrimSpace(prompts.InvestigatorStrict) == "" {
		return nil, fmt.Errorf("%w: investigator prompts", contractx.ErrPromptMissing)
	}

	normal, err := compileJudgmentGraph(ctx, chatModel, prompts.Investigator, "reasoning.judgment_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	strict, err := compileJudgmentGraph(ctx, chatModel, prompts.InvestigatorStrict, "reasoning.judgment_strict_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	allowed := make(map[string]struct{})
	for _, name := range toolx.Names() {
		allowed[name] = struct{}{}
	}

	r := &LLMReasoner{
		normalRunner: normal,
		strictRunner: strict,
		allowedTools: allowed,
	}
	runtime, err := compileRuntimeGraph(ctx, r.judge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	r.runtimeRunner = runtime
	return r, nil
}

func (r *LLMReasoner) Reason(ctx context.Context, req contractx.JudgmentRequest) (contractx.Judgment, error) {
	out, err := r.runtimeRunner.Invoke(ctx, req)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		return contractx.Judgment{}, err
	}
	if req.Strict {
		return contractx.Judgment{}, fmt.Errorf("%w: %v", contractx.ErrMalformedJudgment, err)
	}

	log.Ctx(ctx).Warn().
		Err(err).
		Str("region", req.Region).
		Str("dimension", string(req.Dimension)).
		Int("iteration", req.Iteration).
		Msg("judgment rejected, retrying with strict contract")

	req.Strict = true
	out, err = r.runtimeRunner.Invoke(ctx, req)
	if err != nil {
		if errors.Is(err, contractx.ErrSchemaViolation) {
			return contractx.Judgment{}, fmt.Errorf("%w: %v", contractx.ErrMalformedJudgment, err)
		}
		return contractx.Judgment{}, err
	}
	return out, nil
}

func (r *LLMReasoner) judge(ctx context.Context, req contractx.JudgmentRequest, strict bool) (contractx.Judgment, error) {
	evidence := req.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	payload := map[string]any{
		"task":          req.Task,
		"region":        req.Region,
		"dimension":     req.Dimension,
		"evidence":      evidence,
		"iteration":     req.Iteration,
		"allowed_tools": toolx.Names(),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.Judgment{}, fmt.Errorf("%w: marshal judgment payload: %v", contractx.ErrValidation, err)
	}

	runner := r.normalRunner
	if strict {
		runner = r.strictRunner
	}
	out, err := runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		if errors.Is(err, contractx.ErrSchemaViolation) {
			return contractx.Judgment{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.Judgment{}, ctxErr
		}
		return contractx.Judgment{}, fmt.Errorf("%w: judgment invoke: %v", contractx.ErrModelInvoke, err)
	}

	return r.toJudgment(out)
}

func (r *LLMReasoner) toJudgment(out judgmentLLMOutput) (contractx.Judgment, error) {
	level, err := contractx.ParseRiskLevel(out.RiskLevel)
	if err != nil {
		return contractx.Judgment{}, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	if out.Confidence == nil {
		return contractx.Judgment{}, fmt.Errorf("%w: confidence is required", contractx.ErrSchemaViolation)
	}

	j := contractx.Judgment{
		RiskLevel:  level,
		Confidence: *out.Confidence,
		Rationale:  strings.TrimSpace(out.Rationale),
	}
	for _, p := range out.AffectedParts {
		j.AffectedParts = append(j.AffectedParts, strings.TrimSpace(p))
	}
	for _, f := range out.FollowUp {
		name := strings.TrimSpace(f.Tool)
		if _, ok := r.allowedTools[name]; !ok {
			return contractx.Judgment{}, fmt.Errorf("%w: tool=%s is not allowed", contractx.ErrSchemaViolation, name)
		}
		j.FollowUp = append(j.FollowUp, contractx.ToolRequest{Tool: name, Args: f.Args})
	}

	if err := j.Validate(); err != nil {
		return contractx.Judgment{}, err
	}
	return j, nil
}
