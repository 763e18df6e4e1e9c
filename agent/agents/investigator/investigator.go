package investigator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
)

type phase string

const (
	phaseObserve  phase = "OBSERVE"
	phaseReason   phase = "REASON"
	phaseAct      phase = "ACT"
	phaseConclude phase = "CONCLUDE"
)

var queryTemplates = map[contractx.Dimension]string{
	contractx.DimensionPolitical: "political instability strikes riots tariffs %s",
	contractx.DimensionWeather:   "weather disaster typhoon earthquake flood %s",
	contractx.DimensionLogistics: "logistics shipping port delays %s",
}

// QueryFor returns the opening news query for a dimension.
func QueryFor(dim contractx.Dimension, region string) string {
	tpl, ok := queryTemplates[dim]
	if !ok {
		tpl = "supply chain disruption %s"
	}
	return fmt.Sprintf(tpl, region)
}

// Investigator runs the observe, reason, act loop for one dimension of one
// region. It holds no per-run state and is safe for concurrent use.
type Investigator struct {
	reasoner contractx.Reasoner
	exec     toolx.Executor
	cfg      Config
}

func New(reasoner contractx.Reasoner, tools contractx.ToolGateway, cfg Config) (*Investigator, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("%w: reasoner is required", contractx.ErrValidation)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool gateway is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Investigator{
		reasoner: reasoner,
		exec:     toolx.NewExecutor(tools),
		cfg:      cfg,
	}, nil
}

type loop struct {
	region      string
	dimension   contractx.Dimension
	evidence    []string
	unavailable int
	iteration   int
	acts        int
	inventory   bool
	executed    map[string]bool
	judgment    *contractx.Judgment
	confidence  float64
}

// Investigate never fails because a source is down. It returns an error only
// for invalid input or when the reasoner fails before any provisional
// judgment exists. Cancellation concludes with the best
// finding so far, TimedOut when no judgment was reached.
func (i *Investigator) Investigate(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return contractx.InvestigationFinding{}, fmt.Errorf("%w: region is required", contractx.ErrValidation)
	}
	if _, err := contractx.ParseDimension(string(dim)); err != nil {
		return contractx.InvestigationFinding{}, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "investigator").
		Str("region", region).
		Str("dimension", string(dim)).
		Logger()

	st := &loop{region: region, dimension: dim, executed: map[string]bool{}}
	current := phaseObserve
	for current != phaseConclude {
		if ctx.Err() != nil {
			logger.Debug().Str("phase", string(current)).Msg("investigation cancelled")
			break
		}
		var err error
		current, err = i.step(ctx, logger, st, current)
		if err != nil {
			return contractx.InvestigationFinding{}, err
		}
	}

	return i.conclude(logger, st), nil
}

func (i *Investigator) step(ctx context.Context, logger zerolog.Logger, st *loop, current phase) (phase, error) {
	switch current {
	case phaseObserve:
		i.observe(ctx, st, toolx.ToolNewsSearch, map[string]any{"query": QueryFor(st.dimension, st.region)})
		return phaseReason, nil

	case phaseReason:
		st.iteration++
		j, err := i.reasoner.Reason(ctx, contractx.JudgmentRequest{
			Task:      fmt.Sprintf("Assess %s supply risk for parts sourced from %s.", strings.ToLower(string(st.dimension)), st.region),
			Region:    st.region,
			Dimension: st.dimension,
			Evidence:  append([]string(nil), st.evidence...),
			Iteration: st.iteration,
		})
		if err != nil {
			if ctx.Err() != nil {
				return phaseConclude, nil
			}
			if st.judgment != nil {
				logger.Warn().Err(err).Int("iteration", st.iteration).Msg("keeping provisional judgment")
				return phaseConclude, nil
			}
			if errors.Is(err, contractx.ErrSchemaViolation) {
				err = fmt.Errorf("%w: %v", contractx.ErrMalformedJudgment, err)
			}
			return phaseConclude, err
		}
		st.judgment = &j
		st.confidence = math.Max(0, j.Confidence-float64(st.unavailable)*i.cfg.UnavailablePenalty)
		logger.Debug().
			Int("iteration", st.iteration).
			Str("risk_level", string(j.RiskLevel)).
			Float64("confidence", st.confidence).
			Msg("judgment")
		if st.confidence >= i.cfg.ConfidenceThreshold || st.iteration >= i.cfg.MaxIterations {
			return phaseConclude, nil
		}
		return phaseAct, nil

	case phaseAct:
		st.acts++
		tool, args := i.nextAction(st)
		i.observe(ctx, st, tool, args)
		return phaseReason, nil
	}
	return phaseConclude, fmt.Errorf("investigator: unknown phase %q", current)
}

// nextAction prefers a follow-up the reasoner asked for and otherwise checks
// regional inventory before narrowing the news search.
func (i *Investigator) nextAction(st *loop) (string, map[string]any) {
	if st.judgment != nil {
		for _, f := range st.judgment.FollowUp {
			if !st.executed[actionKey(f.Tool, f.Args)] {
				return f.Tool, f.Args
			}
		}
	}
	if !st.inventory {
		return toolx.ToolInventoryQuery, map[string]any{"region": st.region}
	}
	query := fmt.Sprintf("%s %s supply disruption", st.region, strings.ToLower(string(st.dimension)))
	if st.judgment != nil && len(st.judgment.AffectedParts) > 0 {
		query += " " + strings.Join(st.judgment.AffectedParts, " ")
	}
	if st.executed[actionKey(toolx.ToolNewsSearch, map[string]any{"query": query})] {
		query = fmt.Sprintf("%s latest %s", query, strings.ToLower(string(st.dimension)))
	}
	return toolx.ToolNewsSearch, map[string]any{"query": query}
}

func (i *Investigator) observe(ctx context.Context, st *loop, tool string, args map[string]any) {
	st.executed[actionKey(tool, args)] = true
	if tool == toolx.ToolInventoryQuery {
		st.inventory = true
	}

	res, _ := i.exec(ctx, tool, args)
	content := res.Error
	kind, _ := toolx.KindFor(tool)
	if d, ok := res.Result.(contractx.Digest); ok {
		content = d.Content
		kind = d.Kind
	}
	if res.Error != "" {
		st.unavailable++
	}
	if kind == "" {
		kind = contractx.SourceKind(strings.ToUpper(tool))
	}
	st.evidence = append(st.evidence, fmt.Sprintf("[%s] %s", kind, content))
}

func (i *Investigator) conclude(logger zerolog.Logger, st *loop) contractx.InvestigationFinding {
	finding := contractx.InvestigationFinding{
		Dimension:      st.dimension,
		EvidenceDigest: strings.Join(st.evidence, "\n"),
		IterationsUsed: st.iteration,
	}
	if st.judgment == nil {
		finding.TimedOut = true
		finding.LowConfidence = true
		logger.Warn().Int("iterations", st.iteration).Msg("investigation ended without a judgment")
		return finding
	}

	finding.RiskLevel = st.judgment.RiskLevel
	finding.Confidence = st.confidence
	finding.LowConfidence = st.confidence < i.cfg.ConfidenceThreshold
	finding.AffectedParts = append([]string(nil), st.judgment.AffectedParts...)
	finding.Rationale = st.judgment.Rationale

	logger.Info().
		Str("risk_level", string(finding.RiskLevel)).
		Float64("confidence", finding.Confidence).
		Bool("low_confidence", finding.LowConfidence).
		Int("iterations", finding.IterationsUsed).
		Msg("investigation concluded")
	return finding
}

func actionKey(tool string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(tool)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, args[k])
	}
	return b.String()
}
