package reasoning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
)

var _ contractx.Reasoner = (*KeywordReasoner)(nil)

var (
	defaultCriticalSignals = []string{
		"earthquake", "typhoon", "tsunami", "evacuat", "strike", "riot",
		"armed conflict", "blockade", "embargo", "flood", "shutdown",
	}
	defaultMediumSignals = []string{
		"delay", "heavy rain", "tariff", "congestion", "protest", "shortage", "spike",
	}
	defaultLowSignals = []string{
		"normal operations", "growth", "stabiliz", "capacity increase", "resum",
	}
)

const (
	noSignalConfidence = 0.5
	baseConfidence     = 0.4
	perSignal          = 0.15
	maxConfidence      = 0.95
	// A disruption without inventory evidence cannot say which parts are
	// hit, so it stays below the usual conclusion threshold.
	unassessedImpactCap = 0.6
	lowStockBonus       = 0.1
)

// KeywordReasoner is a deterministic Reasoner for offline runs and tests.
// It counts disruption and stability signals in the evidence.
type KeywordReasoner struct {
	Critical []string
	Medium   []string
	Low      []string
}

func NewKeywordReasoner() *KeywordReasoner {
	return &KeywordReasoner{
		Critical: defaultCriticalSignals,
		Medium:   defaultMediumSignals,
		Low:      defaultLowSignals,
	}
}

type inventoryLine struct {
	partID   string
	lowStock bool
}

func (k *KeywordReasoner) Reason(ctx context.Context, req contractx.JudgmentRequest) (contractx.Judgment, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Judgment{}, err
	}
	if strings.TrimSpace(req.Region) == "" {
		return contractx.Judgment{}, fmt.Errorf("%w: region is required", contractx.ErrValidation)
	}

	var (
		text      strings.Builder
		inventory []inventoryLine
		sawStock  bool
	)
	for _, entry := range req.Evidence {
		for _, line := range strings.Split(entry, "\n") {
			lower := strings.ToLower(strings.TrimSpace(line))
			switch {
			case lower == "":
			case strings.Contains(lower, strings.ToLower(contractx.CodeUnavailable)+":"):
			case strings.Contains(lower, "no recent breaking news"):
			case strings.Contains(lower, "no inventory records"):
				sawStock = true
			case strings.Contains(lower, " stock=") && strings.Contains(lower, "reorder_point="):
				sawStock = true
				if item, ok := parseInventoryLine(line); ok {
					inventory = append(inventory, item)
				}
			default:
				text.WriteString(lower)
				text.WriteByte('\n')
			}
		}
	}

	corpus := text.String()
	critical := matchSignals(corpus, k.Critical)
	medium := matchSignals(corpus, k.Medium)
	low := matchSignals(corpus, k.Low)

	level := contractx.RiskLow
	switch {
	case len(critical) > 0:
		level = contractx.RiskCritical
	case len(medium) > len(low):
		level = contractx.RiskMedium
	}

	hits := len(critical) + len(medium) + len(low)
	confidence := noSignalConfidence
	if hits > 0 {
		confidence = math.Min(baseConfidence+perSignal*float64(hits), maxConfidence)
	}

	var affected []string
	if level != contractx.RiskLow {
		affected = affectedParts(inventory)
		switch {
		case !sawStock:
			confidence = math.Min(confidence, unassessedImpactCap)
		case anyLowStock(inventory):
			confidence = math.Min(confidence+lowStockBonus, maxConfidence)
		}
	}

	j := contractx.Judgment{
		RiskLevel:     level,
		Confidence:    round2(confidence),
		AffectedParts: affected,
		Rationale:     rationale(req, critical, medium, low),
	}
	if level != contractx.RiskLow && !sawStock {
		j.FollowUp = []contractx.ToolRequest{{
			Tool: toolx.ToolInventoryQuery,
			Args: map[string]any{"region": req.Region},
		}}
	}
	return j, j.Validate()
}

func matchSignals(corpus string, signals []string) []string {
	var out []string
	for _, s := range signals {
		if strings.Contains(corpus, s) {
			out = append(out, s)
		}
	}
	return out
}

// parseInventoryLine reads the inventory digest format
// "<part> stock=<n> reorder_point=<n> region=<r> LOW_STOCK|OK".
func parseInventoryLine(line string) (inventoryLine, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	for i, f := range fields {
		if strings.HasPrefix(f, "stock=") && i > 0 {
			part := fields[i-1]
			if idx := strings.LastIndex(part, "]"); idx >= 0 {
				part = part[idx+1:]
			}
			if part == "" {
				return inventoryLine{}, false
			}
			return inventoryLine{
				partID:   part,
				lowStock: fields[len(fields)-1] == "LOW_STOCK",
			}, true
		}
	}
	return inventoryLine{}, false
}

// affectedParts prefers parts at or below their reorder point and falls back
// to every part listed for the region.
func affectedParts(items []inventoryLine) []string {
	seen := map[string]bool{}
	var low, all []string
	for _, it := range items {
		if seen[it.partID] {
			continue
		}
		seen[it.partID] = true
		all = append(all, it.partID)
		if it.lowStock {
			low = append(low, it.partID)
		}
	}
	out := all
	if len(low) > 0 {
		out = low
	}
	sort.Strings(out)
	return out
}

func anyLowStock(items []inventoryLine) bool {
	for _, it := range items {
		if it.lowStock {
			return true
		}
	}
	return false
}

func rationale(req contractx.JudgmentRequest, critical, medium, low []string) string {
	if len(critical)+len(medium)+len(low) == 0 {
		return fmt.Sprintf("No disruption signals for %s %s in the evidence.", strings.ToLower(string(req.Dimension)), req.Region)
	}
	var parts []string
	if len(critical) > 0 {
		parts = append(parts, "critical signals: "+strings.Join(critical, ", "))
	}
	if len(medium) > 0 {
		parts = append(parts, "elevated signals: "+strings.Join(medium, ", "))
	}
	if len(low) > 0 {
		parts = append(parts, "stability signals: "+strings.Join(low, ", "))
	}
	return fmt.Sprintf("%s %s: %s.", req.Region, strings.ToLower(string(req.Dimension)), strings.Join(parts, "; "))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
