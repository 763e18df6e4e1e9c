package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/investigator"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/reasoning"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
)

type fakeInvestigator func(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error)

func (f fakeInvestigator) Investigate(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
	return f(ctx, region, dim)
}

func goldenInvestigator(t *testing.T) *investigator.Investigator {
	t.Helper()
	cfg := toolx.DefaultConfig()
	cfg.RateLimit = 0
	gw, err := toolx.NewGateway(cfg,
		toolx.WithNews(toolx.NewGoldenNews()),
		toolx.WithInventory(toolx.NewStaticInventory(toolx.SeedInventory()...)),
	)
	require.NoError(t, err)
	inv, err := investigator.New(reasoning.NewKeywordReasoner(), gw, investigator.DefaultConfig())
	require.NoError(t, err)
	return inv
}

func shortConfig() Config {
	cfg := DefaultConfig()
	cfg.DimensionTimeout = 100 * time.Millisecond
	return cfg
}

func TestScanTaiwanIsCritical(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(goldenInvestigator(t), DefaultConfig(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := s.Scan(context.Background(), "Taiwan")
	require.NoError(t, err)
	require.Equal(t, contractx.RiskCritical, report.RiskLevel)
	require.Equal(t, []string{"Logic-Core-CPU"}, report.AffectedParts)
	require.Len(t, report.Findings, 3)
	require.Equal(t, contractx.DimensionPolitical, report.Findings[0].Dimension)
	require.Equal(t, contractx.RiskCritical, report.Findings[0].RiskLevel)
	require.Equal(t, contractx.RiskCritical, report.Findings[1].RiskLevel)
	require.Contains(t, report.Summary, "Earthquake")
	require.Empty(t, report.Caveats)
	require.Equal(t, now, report.Timestamp)
}

func TestScanVietnamIsLow(t *testing.T) {
	t.Parallel()

	s, err := New(goldenInvestigator(t), DefaultConfig())
	require.NoError(t, err)

	report, err := s.Scan(context.Background(), "Vietnam")
	require.NoError(t, err)
	require.Equal(t, contractx.RiskLow, report.RiskLevel)
	require.Empty(t, report.AffectedParts)
	require.Len(t, report.Findings, 3)
	for _, f := range report.Findings {
		require.Equal(t, contractx.RiskLow, f.RiskLevel)
	}
}

func TestScanRunsDimensionsConcurrently(t *testing.T) {
	t.Parallel()

	var started sync.WaitGroup
	started.Add(3)
	inv := fakeInvestigator(func(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
		started.Done()
		started.Wait()
		return contractx.InvestigationFinding{Dimension: dim, RiskLevel: contractx.RiskMedium, Confidence: 0.8}, nil
	})

	cfg := DefaultConfig()
	cfg.DimensionTimeout = 2 * time.Second
	s, err := New(inv, cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	var report contractx.RiskReport
	go func() {
		defer close(done)
		report, err = s.Scan(context.Background(), "Taiwan")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dimensions did not run concurrently")
	}
	require.NoError(t, err)
	require.Equal(t, contractx.RiskMedium, report.RiskLevel)
}

func TestScanExcludesTimedOutDimension(t *testing.T) {
	t.Parallel()

	inv := fakeInvestigator(func(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
		switch dim {
		case contractx.DimensionWeather:
			<-ctx.Done()
			return contractx.InvestigationFinding{Dimension: dim, TimedOut: true}, nil
		case contractx.DimensionLogistics:
			<-ctx.Done()
			return contractx.InvestigationFinding{}, ctx.Err()
		}
		return contractx.InvestigationFinding{Dimension: dim, RiskLevel: contractx.RiskMedium, Confidence: 0.9}, nil
	})

	s, err := New(inv, shortConfig())
	require.NoError(t, err)

	report, err := s.Scan(context.Background(), "Taiwan")
	require.NoError(t, err)
	require.Equal(t, contractx.RiskMedium, report.RiskLevel)
	require.Len(t, report.Findings, 1)
	require.Len(t, report.Caveats, 2)
	require.True(t, strings.HasPrefix(report.Caveats[0], "WEATHER: timed out"))
	require.True(t, strings.HasPrefix(report.Caveats[1], "LOGISTICS: timed out"))
	require.Contains(t, report.Summary, "Caveats:")
}

func TestScanAllTimedOutIsInconclusive(t *testing.T) {
	t.Parallel()

	inv := fakeInvestigator(func(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
		<-ctx.Done()
		return contractx.InvestigationFinding{Dimension: dim, TimedOut: true}, nil
	})
	s, err := New(inv, shortConfig())
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), "Taiwan")
	require.True(t, errors.Is(err, contractx.ErrScanInconclusive))
	require.Equal(t, contractx.CodeScanInconclusive, contractx.Code(err))
}

func TestScanReportsFailedDimensionAsCaveat(t *testing.T) {
	t.Parallel()

	inv := fakeInvestigator(func(ctx context.Context, region string, dim contractx.Dimension) (contractx.InvestigationFinding, error) {
		if dim == contractx.DimensionPolitical {
			return contractx.InvestigationFinding{}, contractx.ErrMalformedJudgment
		}
		return contractx.InvestigationFinding{Dimension: dim, RiskLevel: contractx.RiskLow, Confidence: 0.4, LowConfidence: true, IterationsUsed: 3}, nil
	})
	s, err := New(inv, shortConfig())
	require.NoError(t, err)

	report, err := s.Scan(context.Background(), "Vietnam")
	require.NoError(t, err)
	require.Equal(t, contractx.RiskLow, report.RiskLevel)
	require.Contains(t, report.Caveats[0], "POLITICAL: MALFORMED_JUDGMENT")
	require.Contains(t, strings.Join(report.Caveats, "\n"), "low confidence")
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	inv := fakeInvestigator(nil)
	_, err := New(inv, Config{Dimensions: []string{"SEISMIC"}, DimensionTimeout: time.Second})
	require.ErrorIs(t, err, contractx.ErrValidation)
	_, err = New(inv, Config{Dimensions: []string{"WEATHER"}})
	require.ErrorIs(t, err, contractx.ErrValidation)
	_, err = New(nil, DefaultConfig())
	require.ErrorIs(t, err, contractx.ErrValidation)

	s, err := New(inv, Config{Dimensions: []string{"weather", "WEATHER"}, DimensionTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, []contractx.Dimension{contractx.DimensionWeather}, s.dimensions)

	_, err = s.Scan(context.Background(), "  ")
	require.ErrorIs(t, err, contractx.ErrValidation)
}
