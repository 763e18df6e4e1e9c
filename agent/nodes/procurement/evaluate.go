package procurementnode

import (
	"context"
	"fmt"

	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// Evaluate compares the canonical total with the approval threshold. A total
// that could not be converted always needs a human.
func Evaluate(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	threshold := d.Policy.ApprovalThreshold
	total := formatTotal(wf, d.Policy.Currency)

	switch {
	case !wf.CanonicalKnown:
		st.NeedsApproval = true
		st.Reason = fmt.Sprintf("total %s cannot be checked against threshold %.2f %s", total, threshold, d.Policy.Currency)
	case wf.CanonicalTotal >= threshold:
		st.NeedsApproval = true
		st.Reason = fmt.Sprintf("total %s meets threshold %.2f %s", total, threshold, d.Policy.Currency)
	default:
		st.NeedsApproval = false
		st.Reason = fmt.Sprintf("total %s below threshold %.2f %s", total, threshold, d.Policy.Currency)
	}

	if err := advance(ctx, st, d, statex.StepEvaluate, st.Reason); err != nil {
		return nil, err
	}
	return st, nil
}

// NeedsApproval reports whether Evaluate routed the draft to a human.
func NeedsApproval(st *GraphState) bool { return st.NeedsApproval }
