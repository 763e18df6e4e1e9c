package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
)

func goldenGateway(t *testing.T) *toolx.Gateway {
	t.Helper()
	cfg := toolx.DefaultConfig()
	cfg.RateLimit = 0
	gw, err := toolx.NewGateway(cfg,
		toolx.WithNews(toolx.NewGoldenNews()),
		toolx.WithInventory(toolx.NewStaticInventory(toolx.SeedInventory()...)),
	)
	require.NoError(t, err)
	return gw
}

func newsEvidence(t *testing.T, gw *toolx.Gateway, query string) string {
	t.Helper()
	d := gw.Query(context.Background(), contractx.SourceNews, map[string]any{"query": query})
	require.True(t, d.Available)
	return "[NEWS_SEARCH] " + d.Content
}

func inventoryEvidence(t *testing.T, gw *toolx.Gateway, region string) string {
	t.Helper()
	d := gw.Query(context.Background(), contractx.SourceInventory, map[string]any{"region": region})
	require.True(t, d.Available)
	return "[INVENTORY_QUERY] " + d.Content
}

func TestKeywordReasonerTaiwanNeedsInventoryBeforeConcluding(t *testing.T) {
	t.Parallel()

	gw := goldenGateway(t)
	r := NewKeywordReasoner()
	req := contractx.JudgmentRequest{
		Region:    "Taiwan",
		Dimension: contractx.DimensionWeather,
		Evidence:  []string{newsEvidence(t, gw, "weather disaster typhoon earthquake flood Taiwan")},
		Iteration: 1,
	}

	j, err := r.Reason(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, contractx.RiskCritical, j.RiskLevel)
	require.Less(t, j.Confidence, 0.7)
	require.Empty(t, j.AffectedParts)
	require.Len(t, j.FollowUp, 1)
	require.Equal(t, toolx.ToolInventoryQuery, j.FollowUp[0].Tool)
	require.Equal(t, "Taiwan", j.FollowUp[0].Args["region"])

	req.Evidence = append(req.Evidence, inventoryEvidence(t, gw, "Taiwan"))
	req.Iteration = 2
	j, err = r.Reason(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, contractx.RiskCritical, j.RiskLevel)
	require.GreaterOrEqual(t, j.Confidence, 0.7)
	require.Equal(t, []string{"Logic-Core-CPU"}, j.AffectedParts)
	require.Empty(t, j.FollowUp)
}

func TestKeywordReasonerVietnamIsLow(t *testing.T) {
	t.Parallel()

	gw := goldenGateway(t)
	r := NewKeywordReasoner()
	for _, dim := range contractx.AllDimensions() {
		j, err := r.Reason(context.Background(), contractx.JudgmentRequest{
			Region:    "Vietnam",
			Dimension: dim,
			Evidence:  []string{newsEvidence(t, gw, "port conditions Vietnam")},
			Iteration: 1,
		})
		require.NoError(t, err)
		require.Equal(t, contractx.RiskLow, j.RiskLevel, dim)
		require.GreaterOrEqual(t, j.Confidence, 0.7, dim)
		require.Empty(t, j.AffectedParts)
	}
}

func TestKeywordReasonerIgnoresQueryEchoAndUnavailable(t *testing.T) {
	t.Parallel()

	r := NewKeywordReasoner()
	j, err := r.Reason(context.Background(), contractx.JudgmentRequest{
		Region:    "Atlantis",
		Dimension: contractx.DimensionPolitical,
		Evidence: []string{
			"[NEWS_SEARCH] No recent breaking news found regarding 'political instability strikes riots tariffs Atlantis'.",
			"[INVENTORY_QUERY] UNAVAILABLE: INVENTORY_QUERY unavailable (source unavailable: earthquake in datacenter)",
		},
		Iteration: 1,
	})
	require.NoError(t, err)
	require.Equal(t, contractx.RiskLow, j.RiskLevel)
	require.Equal(t, noSignalConfidence, j.Confidence)
}

func TestKeywordReasonerMediumFallsBackToAllRegionParts(t *testing.T) {
	t.Parallel()

	r := NewKeywordReasoner()
	j, err := r.Reason(context.Background(), contractx.JudgmentRequest{
		Region:    "Vietnam",
		Dimension: contractx.DimensionLogistics,
		Evidence: []string{
			"[NEWS_SEARCH] Port congestion causes delays at Haiphong.",
			"[INVENTORY_QUERY] Sensor-Array stock=220 reorder_point=120 region=Vietnam OK\nPower-Board stock=350 reorder_point=150 region=Vietnam OK",
		},
	})
	require.NoError(t, err)
	require.Equal(t, contractx.RiskMedium, j.RiskLevel)
	require.Equal(t, []string{"Power-Board", "Sensor-Array"}, j.AffectedParts)
	require.Empty(t, j.FollowUp)
}

func TestKeywordReasonerRespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewKeywordReasoner().Reason(ctx, contractx.JudgmentRequest{Region: "Taiwan", Dimension: contractx.DimensionWeather})
	require.True(t, errors.Is(err, context.Canceled))
}
