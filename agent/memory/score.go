package memory

import (
	"fmt"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

// NeutralScore is reported for suppliers with no recorded outcome.
const NeutralScore = 0.5

type adjustment struct {
	alpha  float64
	target float64
}

var adjustments = map[contractx.Outcome]adjustment{
	contractx.OutcomeSuccess: {alpha: 0.2, target: 1.0},
	contractx.OutcomeLate:    {alpha: 0.1, target: 0.0},
	contractx.OutcomeFailed:  {alpha: 0.4, target: 0.0},
}

// Score moves current toward the outcome's target by an exponential moving
// average step and clamps the result to [0,1].
func Score(current float64, outcome contractx.Outcome) (float64, error) {
	adj, ok := adjustments[outcome]
	if !ok {
		return current, fmt.Errorf("%w: unknown outcome %q", contractx.ErrValidation, outcome)
	}
	next := current + adj.alpha*(adj.target-current)
	return clamp(next), nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func neutralRecord(supplierID string) contractx.SupplierRecord {
	return contractx.SupplierRecord{SupplierID: supplierID, ReliabilityScore: NeutralScore}
}

func apply(rec contractx.SupplierRecord, outcome contractx.Outcome) (contractx.SupplierRecord, error) {
	score, err := Score(rec.ReliabilityScore, outcome)
	if err != nil {
		return rec, err
	}
	rec.ReliabilityScore = score
	rec.TotalTransactions++
	if outcome != contractx.OutcomeSuccess {
		rec.FailedTransactions++
	}
	return rec, nil
}
