package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const tracerName = "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/supervisor"

// Investigator is the per-dimension worker fanned out by Scan.
type Investigator interface {
	Investigate(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error)
}

type Option func(*Supervisor)

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

type Supervisor struct {
	investigator Investigator
	dimensions   []contractx.Dimension
	timeout      time.Duration
	now          func() time.Time
}

func New(investigator Investigator, cfg Config, opts ...Option) (*Supervisor, error) {
	if investigator == nil {
		return nil, fmt.Errorf("%w: investigator is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dims, _ := cfg.dimensions()
	s := &Supervisor{
		investigator: investigator,
		dimensions:   dims,
		timeout:      cfg.DimensionTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type dimensionResult struct {
	order    int
	finding  contractx.InvestigationFinding
	err      error
	timedOut bool
}

// Scan investigates every configured dimension of region concurrently and
// merges the findings. Dimensions that time out are excluded from the risk
// level and reported as caveats. When no dimension completes the scan fails
// with contract.ErrScanInconclusive.
func (s *Supervisor) Scan(ctx context.Context, region string) (report contractx.RiskReport, err error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return contractx.RiskReport{}, fmt.Errorf("%w: region is required", contractx.ErrValidation)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "supervisor.scan")
	span.SetAttributes(attribute.String("sentinell.region", region))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, contractx.Code(err))
		} else {
			span.SetAttributes(attribute.String("sentinell.risk_level", string(report.RiskLevel)))
		}
		span.End()
	}()

	logger := log.Ctx(ctx).With().Str("component", "supervisor").Str("region", region).Logger()
	started := s.now()

	p := pool.NewWithResults[dimensionResult]().WithMaxGoroutines(len(s.dimensions))
	for i, dim := range s.dimensions {
		i, dim := i, dim
		p.Go(func() dimensionResult {
			dctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			finding, err := s.investigator.Investigate(dctx, region, dim)
			res := dimensionResult{order: i, finding: finding, err: err}
			if err == nil && finding.TimedOut {
				res.timedOut = true
			}
			if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
				res.timedOut = true
				res.err = nil
			}
			return res
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].order < results[j].order })

	report, err = s.merge(region, results)
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", s.now().Sub(started)).Msg("scan inconclusive")
		return contractx.RiskReport{}, err
	}
	logger.Info().
		Str("risk_level", string(report.RiskLevel)).
		Strs("affected_parts", report.AffectedParts).
		Int("caveats", len(report.Caveats)).
		Dur("elapsed", s.now().Sub(started)).
		Msg("scan complete")
	return report, nil
}

func (s *Supervisor) merge(region string, results []dimensionResult) (contractx.RiskReport, error) {
	var (
		levels   []contractx.RiskLevel
		findings []contractx.InvestigationFinding
		caveats  []string
		lines    []string
		parts    = map[string]bool{}
	)

	for _, r := range results {
		dim := r.finding.Dimension
		if dim == "" {
			dim = s.dimensions[r.order]
		}
		switch {
		case r.timedOut:
			caveats = append(caveats, fmt.Sprintf("%s: timed out after %s, excluded from the risk level", dim, s.timeout))
			continue
		case r.err != nil:
			caveats = append(caveats, fmt.Sprintf("%s: %s, excluded from the risk level (%v)", dim, contractx.Code(r.err), r.err))
			continue
		}

		f := r.finding
		f.Dimension = dim
		findings = append(findings, f)
		levels = append(levels, f.RiskLevel)
		if f.RiskLevel != contractx.RiskLow {
			for _, p := range f.AffectedParts {
				parts[p] = true
			}
		}
		if f.LowConfidence {
			caveats = append(caveats, fmt.Sprintf("%s: low confidence (%.2f) after %d iterations", dim, f.Confidence, f.IterationsUsed))
		}
		lines = append(lines, narrate(f))
	}

	if len(findings) == 0 {
		return contractx.RiskReport{}, fmt.Errorf("%w: region %s (%s)", contractx.ErrScanInconclusive, region, strings.Join(caveats, "; "))
	}

	level := contractx.MaxRisk(levels...)
	affected := make([]string, 0, len(parts))
	for p := range parts {
		affected = append(affected, p)
	}
	sort.Strings(affected)

	summary := fmt.Sprintf("%s supply risk is %s.", region, level)
	if len(lines) > 0 {
		summary += "\n" + strings.Join(lines, "\n")
	}
	if len(caveats) > 0 {
		summary += "\nCaveats: " + strings.Join(caveats, "; ")
	}

	return contractx.RiskReport{
		Region:        region,
		RiskLevel:     level,
		AffectedParts: affected,
		Summary:       summary,
		Caveats:       caveats,
		Findings:      findings,
		Timestamp:     s.now().UTC(),
	}, nil
}

// narrate turns one finding into a summary line built from its evidence.
func narrate(f contractx.InvestigationFinding) string {
	var evidence []string
	for _, line := range strings.Split(f.EvidenceDigest, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "["+string(contractx.SourceNews)+"]") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "["+string(contractx.SourceNews)+"]"))
		if line != "" {
			evidence = append(evidence, line)
		}
	}

	out := fmt.Sprintf("%s: %s (confidence %.2f).", f.Dimension, f.RiskLevel, f.Confidence)
	if f.Rationale != "" {
		out += " " + f.Rationale
	}
	if len(evidence) > 0 {
		out += " Evidence: " + strings.Join(evidence, " ")
	}
	if len(f.AffectedParts) > 0 {
		out += " Affected parts: " + strings.Join(f.AffectedParts, ", ") + "."
	}
	return out
}
