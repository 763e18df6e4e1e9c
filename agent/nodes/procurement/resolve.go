package procurementnode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// LoadApproval validates a resolution and loads the suspended workflow it
// targets. A request that is no longer pending is ErrAlreadyResolved.
func LoadApproval(ctx context.Context, in ResolveInput, d *Deps) (*GraphState, error) {
	in.ApprovalID = strings.TrimSpace(in.ApprovalID)
	in.Actor = strings.TrimSpace(in.Actor)
	if in.ApprovalID == "" {
		return nil, fmt.Errorf("%w: approval id is required", contractx.ErrValidation)
	}
	if in.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", contractx.ErrValidation)
	}
	if in.Decision != contractx.DecisionApprove && in.Decision != contractx.DecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", contractx.ErrValidation, in.Decision)
	}

	wf, err := d.Store.FindByApproval(ctx, in.ApprovalID)
	if err != nil {
		return nil, err
	}
	if wf.Approval != nil && wf.Approval.Resolution == contractx.ResolutionExpired {
		return nil, fmt.Errorf("%w: %s", contractx.ErrApprovalExpired, in.ApprovalID)
	}
	if !wf.PendingApproval() {
		resolution := contractx.Resolution("")
		if wf.Approval != nil {
			resolution = wf.Approval.Resolution
		}
		return nil, fmt.Errorf("%w: %s is %s", contractx.ErrAlreadyResolved, in.ApprovalID, resolution)
	}
	return &GraphState{Workflow: wf, Resolution: &in}, nil
}

// ApplyResolution records the human decision. Approval moves the workflow
// to PLACE_ORDER; rejection and expiry end it.
func ApplyResolution(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	in := st.Resolution
	if Expired(wf, d) {
		return st, ExpireApproval(ctx, st, d)
	}

	now := d.now()
	wf.Approval.ResolvedAt = &now
	wf.Approval.ResolvedBy = in.Actor

	logger := log.Ctx(ctx).With().
		Str("workflow_id", wf.ID).
		Str("approval_id", wf.Approval.ID).
		Str("actor", in.Actor).
		Logger()

	if in.Decision == contractx.DecisionReject {
		wf.Approval.Resolution = contractx.ResolutionRejected
		logger.Info().Msg("approval rejected")
		return st, fail(ctx, st, d, contractx.CodeApprovalDenied, "rejected by "+in.Actor)
	}

	// The decision and the move to PLACE_ORDER are one save. A failed save
	// leaves the stored request pending, so the caller can resolve again.
	wf.Approval.Resolution = contractx.ResolutionApproved
	if err := advance(ctx, st, d, statex.StepPlaceOrder, "approved by "+in.Actor); err != nil {
		return nil, err
	}
	logger.Info().Msg("approval granted")
	return st, nil
}

// Expired reports whether a pending approval outlived the configured TTL.
// A zero TTL never expires.
func Expired(wf *statex.Workflow, d *Deps) bool {
	if d.Policy.ApprovalTTL <= 0 || !wf.PendingApproval() {
		return false
	}
	return !d.now().Before(wf.Approval.RequestedAt.Add(d.Policy.ApprovalTTL))
}

func ExpireApproval(ctx context.Context, st *GraphState, d *Deps) error {
	wf := st.Workflow
	now := d.now()
	wf.Approval.Resolution = contractx.ResolutionExpired
	wf.Approval.ResolvedAt = &now
	return fail(ctx, st, d, contractx.CodeApprovalExpired,
		fmt.Sprintf("approval %s not resolved within %s", wf.Approval.ID, d.Policy.ApprovalTTL))
}
