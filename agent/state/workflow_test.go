package state

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

func newTestWorkflow(id string) *Workflow {
	return NewWorkflow(id, contractx.PurchaseRequest{PartID: "Logic-Core-CPU", Quantity: 50}, time.Unix(0, 0))
}

func TestWorkflowTransitionsFollowProcurementOrder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	wf := newTestWorkflow("wf-1")
	path := []Step{StepCheckMemory, StepRequestQuote, StepEvaluate, StepAutoApprove, StepPlaceOrder, StepUpdateMemory, StepDone}
	for _, step := range path {
		if err := wf.Transition(step, "", now); err != nil {
			t.Fatalf("Transition(%s) error = %v", step, err)
		}
	}
	if !wf.IsTerminal() {
		t.Fatalf("expected terminal workflow")
	}
	if len(wf.History) != len(path) {
		t.Fatalf("history = %d, want %d", len(wf.History), len(path))
	}
	if wf.History[0].From != StepNew || wf.History[0].To != StepCheckMemory {
		t.Fatalf("unexpected first transition %+v", wf.History[0])
	}
}

func TestWorkflowRejectsSkippingSteps(t *testing.T) {
	t.Parallel()

	wf := newTestWorkflow("wf-2")
	_ = wf.Transition(StepCheckMemory, "", time.Now())

	err := wf.Transition(StepPlaceOrder, "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}
	if wf.Step != StepCheckMemory {
		t.Fatalf("step changed on rejected transition: %s", wf.Step)
	}
	if err := wf.Transition(StepFailed, "", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("FAILED must go through Fail, got %v", err)
	}
}

func TestWorkflowFailIsAbsorbing(t *testing.T) {
	t.Parallel()

	wf := newTestWorkflow("wf-3")
	_ = wf.Transition(StepCheckMemory, "", time.Now())
	if err := wf.Fail(contractx.CodeNoViableSupplier, "all below floor", time.Now()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if wf.Step != StepFailed || wf.FailureReason != contractx.CodeNoViableSupplier {
		t.Fatalf("unexpected failure state %+v", wf)
	}
	if err := wf.Fail(contractx.CodeApprovalDenied, "", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Fail() error = %v, want ErrInvalidTransition", err)
	}
	if err := wf.Transition(StepRequestQuote, "", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("transition out of FAILED error = %v", err)
	}
}

func TestWorkflowValidateRejectsUnapprovedConfirmedOrder(t *testing.T) {
	t.Parallel()

	wf := newTestWorkflow("wf-4")
	wf.Order = &contractx.Order{OrderID: "PO-00001", Status: contractx.OrderConfirmed}
	if err := wf.Validate(); err == nil {
		t.Fatalf("expected validation error for confirmed order without approval")
	}

	wf.AutoApproved = true
	if err := wf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestWorkflowPendingApproval(t *testing.T) {
	t.Parallel()

	wf := newTestWorkflow("wf-5")
	for _, step := range []Step{StepCheckMemory, StepRequestQuote, StepEvaluate, StepAwaitApproval} {
		_ = wf.Transition(step, "", time.Now())
	}
	wf.Approval = &contractx.ApprovalRequest{ID: "apr-1", WorkflowID: wf.ID, Resolution: contractx.ResolutionPending}
	if !wf.PendingApproval() {
		t.Fatalf("expected pending approval")
	}
	wf.Approval.Resolution = contractx.ResolutionApproved
	if wf.PendingApproval() {
		t.Fatalf("approved request is not pending")
	}
	if !wf.Approved() {
		t.Fatalf("expected approved")
	}
}
