package procurementnode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

func AutoApprove(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	st.Workflow.AutoApproved = true
	if err := advance(ctx, st, d, statex.StepAutoApprove, ""); err != nil {
		return nil, err
	}
	return st, nil
}

// AwaitApproval creates the approval request and suspends the workflow. The
// suspension is the persisted AWAIT_APPROVAL state; nothing blocks.
func AwaitApproval(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	id := strings.TrimSpace(d.NewID())
	if id == "" {
		return nil, abort(ctx, st, d, fmt.Errorf("%w: empty approval id", contractx.ErrValidation))
	}
	wf.Approval = &contractx.ApprovalRequest{
		ID:         "APR-" + id,
		WorkflowID: wf.ID,
		OrderDraft: contractx.OrderDraft{
			Quote:          *wf.Quote,
			CanonicalTotal: wf.CanonicalTotal,
			CanonicalKnown: wf.CanonicalKnown,
		},
		Reason:      st.Reason,
		RequestedAt: d.now(),
		Resolution:  contractx.ResolutionPending,
	}
	if err := advance(ctx, st, d, statex.StepAwaitApproval, wf.Approval.ID); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("workflow_id", wf.ID).
		Str("approval_id", wf.Approval.ID).
		Str("supplier_id", wf.Quote.SupplierID).
		Float64("canonical_total", wf.CanonicalTotal).
		Msg("procurement awaiting approval")
	return st, nil
}

// NotifyApprover tells the outside world about a new approval request.
// Delivery failures are logged; the request is already durable.
func NotifyApprover(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	if d.Notifier == nil || st.Workflow.Approval == nil {
		return st, nil
	}
	if err := d.Notifier.ApprovalRequested(ctx, *st.Workflow.Approval); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("approval_id", st.Workflow.Approval.ID).
			Msg("approval notification failed")
	}
	return st, nil
}
