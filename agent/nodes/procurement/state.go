package procurementnode

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

type StartInput struct {
	Request contractx.PurchaseRequest
}

type ResolveInput struct {
	ApprovalID string
	Decision   contractx.Decision
	Actor      string
}

type GraphOutput struct {
	Outcome contractx.PurchaseOutcome
}

type GraphState struct {
	Workflow   *statex.Workflow
	Resolution *ResolveInput

	// Set by Evaluate.
	NeedsApproval bool
	Reason        string
}

// Policy holds the procurement rules applied by the nodes.
type Policy struct {
	ApprovalThreshold float64
	ReliabilityFloor  float64
	ApprovalTTL       time.Duration
	Currency          string
}

// Deps is everything the nodes touch outside the graph state.
type Deps struct {
	Store      statex.Store
	Memory     contractx.MemoryBank
	Negotiator contractx.Negotiator
	Notifier   contractx.ApprovalNotifier
	Policy     Policy
	NewID      func() string
	Now        func() time.Time
}

func (d *Deps) Validate() error {
	switch {
	case d.Store == nil:
		return errors.New("procurement: store is required")
	case d.Memory == nil:
		return errors.New("procurement: memory bank is required")
	case d.Negotiator == nil:
		return errors.New("procurement: negotiator is required")
	case d.NewID == nil:
		return errors.New("procurement: id generator is required")
	case d.Now == nil:
		return errors.New("procurement: clock is required")
	}
	return nil
}

func (d *Deps) now() time.Time { return d.Now().UTC() }

// advance moves the workflow to step and persists it.
func advance(ctx context.Context, st *GraphState, d *Deps, to statex.Step, note string) error {
	if err := st.Workflow.Transition(to, note, d.now()); err != nil {
		return err
	}
	return d.Store.Save(ctx, st.Workflow)
}

// fail terminates the workflow with a taxonomy code and persists it.
func fail(ctx context.Context, st *GraphState, d *Deps, code, detail string) error {
	wf := st.Workflow
	log.Ctx(ctx).Warn().
		Str("workflow_id", wf.ID).
		Str("step", string(wf.Step)).
		Str("reason", code).
		Str("detail", detail).
		Msg("procurement workflow failed")
	if err := wf.Fail(code, detail, d.now()); err != nil {
		return err
	}
	return d.Store.Save(ctx, wf)
}

// abort records err on a workflow that cannot continue and returns it. The
// save runs even when ctx is already cancelled.
func abort(ctx context.Context, st *GraphState, d *Deps, err error) error {
	if st == nil || st.Workflow == nil || st.Workflow.IsTerminal() {
		return err
	}
	if ferr := fail(context.WithoutCancel(ctx), st, d, contractx.Code(err), err.Error()); ferr != nil {
		log.Ctx(ctx).Error().Err(ferr).Str("workflow_id", st.Workflow.ID).Msg("failed to persist aborted workflow")
	}
	return err
}

// Failed reports whether the graph should skip to finish.
func Failed(st *GraphState) bool {
	return st != nil && st.Workflow != nil && st.Workflow.Step == statex.StepFailed
}
