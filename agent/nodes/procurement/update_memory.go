package procurementnode

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// UpdateMemory records the order outcome against the supplier whatever it
// was, then closes the workflow.
func UpdateMemory(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	outcome := OutcomeFor(*wf.Quote, *wf.Order)
	if err := advance(ctx, st, d, statex.StepUpdateMemory, string(outcome)); err != nil {
		return nil, err
	}
	wf.Outcome = outcome

	rec, err := d.Memory.RecordOutcome(ctx, wf.Order.SupplierID, outcome)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("workflow_id", wf.ID).
			Str("supplier_id", wf.Order.SupplierID).
			Str("outcome", string(outcome)).
			Msg("failed to record supplier outcome")
	} else {
		wf.Supplier = &rec
	}

	if wf.Order.Status == contractx.OrderConfirmed {
		if err := advance(ctx, st, d, statex.StepDone, wf.Order.OrderID); err != nil {
			return nil, err
		}
		log.Ctx(ctx).Info().
			Str("workflow_id", wf.ID).
			Str("order_id", wf.Order.OrderID).
			Str("supplier_id", wf.Order.SupplierID).
			Str("outcome", string(outcome)).
			Msg("procurement completed")
		return st, nil
	}
	return st, fail(ctx, st, d, contractx.CodeOrderFailed, wf.Order.Message)
}

// OutcomeFor grades an order for the memory bank. A confirmation that
// arrives with a longer lead time than quoted is LATE.
func OutcomeFor(q contractx.Quote, o contractx.Order) contractx.Outcome {
	switch {
	case o.Status != contractx.OrderConfirmed:
		return contractx.OutcomeFailed
	case o.LeadTimeDays > q.LeadTimeDays:
		return contractx.OutcomeLate
	default:
		return contractx.OutcomeSuccess
	}
}
