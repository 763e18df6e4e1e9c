package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

// Workflow is the persistent source of truth for one procurement run. It is
// saved after every step so a run suspended in AWAIT_APPROVAL survives a
// restart and resumes where it stopped.
type Workflow struct {
	ID        string              `json:"id"`
	PartID    string              `json:"part_id"`
	Quantity  int                 `json:"quantity"`
	Region    string              `json:"region,omitempty"`
	RiskLevel contractx.RiskLevel `json:"risk_level,omitempty"`

	Step Step `json:"step"`

	Candidates []Candidate `json:"candidates,omitempty"` // reliability desc
	Excluded   []Candidate `json:"excluded,omitempty"`   // below floor
	Attempted  []string    `json:"attempted,omitempty"`  // supplier ids tried, in order

	Quote          *contractx.Quote           `json:"quote,omitempty"`
	CanonicalTotal float64                    `json:"canonical_total,omitempty"`
	CanonicalKnown bool                       `json:"canonical_known,omitempty"`
	Approval       *contractx.ApprovalRequest `json:"approval,omitempty"`
	AutoApproved   bool                       `json:"auto_approved,omitempty"`
	Order          *contractx.Order           `json:"order,omitempty"`
	Outcome        contractx.Outcome          `json:"outcome,omitempty"`
	Supplier       *contractx.SupplierRecord  `json:"supplier,omitempty"`
	Substitutions  []Substitution             `json:"substitutions,omitempty"` // orders moved off the approved supplier

	FailureReason string `json:"failure_reason,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`

	History []Transition `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Candidate struct {
	SupplierID string  `json:"supplier_id"`
	Score      float64 `json:"score"`
}

type Substitution struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type Transition struct {
	From Step      `json:"from"`
	To   Step      `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

type Step string

const (
	StepNew           Step = ""
	StepCheckMemory   Step = "CHECK_MEMORY"
	StepRequestQuote  Step = "REQUEST_QUOTE"
	StepEvaluate      Step = "EVALUATE"
	StepAutoApprove   Step = "AUTO_APPROVE"
	StepAwaitApproval Step = "AWAIT_APPROVAL"
	StepPlaceOrder    Step = "PLACE_ORDER"
	StepUpdateMemory  Step = "UPDATE_MEMORY"
	StepDone          Step = "DONE"
	StepFailed        Step = "FAILED"
)

var (
	ErrNilWorkflow       = errors.New("workflow is nil")
	ErrInvalidWorkflowID = errors.New("workflow id is empty")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrStaleWorkflow     = errors.New("workflow was modified concurrently")
)

var allowedTransitions = map[Step][]Step{
	StepNew:           {StepCheckMemory},
	StepCheckMemory:   {StepRequestQuote},
	StepRequestQuote:  {StepEvaluate},
	StepEvaluate:      {StepAutoApprove, StepAwaitApproval},
	StepAutoApprove:   {StepPlaceOrder},
	StepAwaitApproval: {StepPlaceOrder},
	StepPlaceOrder:    {StepUpdateMemory},
	StepUpdateMemory:  {StepDone, StepFailed},
}

func NewWorkflow(id string, req contractx.PurchaseRequest, now time.Time) *Workflow {
	return &Workflow{
		ID:        id,
		PartID:    strings.TrimSpace(req.PartID),
		Quantity:  req.Quantity,
		Region:    strings.TrimSpace(req.Region),
		RiskLevel: req.RiskLevel,
		Step:      StepNew,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s Step) Terminal() bool { return s == StepDone || s == StepFailed }

func (w *Workflow) IsTerminal() bool { return w != nil && w.Step.Terminal() }

func (w *Workflow) Touch(now time.Time) { w.UpdatedAt = now.UTC() }

// Transition moves the workflow forward along the procurement order. Any
// non-terminal step may also move to FAILED, but only through Fail.
func (w *Workflow) Transition(to Step, note string, now time.Time) error {
	if w == nil {
		return ErrNilWorkflow
	}
	if !slices.Contains(allowedTransitions[w.Step], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, stepName(w.Step), stepName(to))
	}
	w.record(to, note, now)
	return nil
}

// Fail moves a non-terminal workflow to FAILED with a taxonomy code.
func (w *Workflow) Fail(reason, detail string, now time.Time) error {
	if w == nil {
		return ErrNilWorkflow
	}
	if w.IsTerminal() {
		return fmt.Errorf("%w: %s -> FAILED", ErrInvalidTransition, stepName(w.Step))
	}
	w.FailureReason = reason
	w.FailureDetail = detail
	w.record(StepFailed, reason, now)
	return nil
}

func (w *Workflow) record(to Step, note string, now time.Time) {
	w.History = append(w.History, Transition{From: w.Step, To: to, At: now.UTC(), Note: note})
	w.Step = to
	w.Touch(now)
}

// Visited reports whether the workflow has ever entered step.
func (w *Workflow) Visited(step Step) bool {
	for _, t := range w.History {
		if t.To == step {
			return true
		}
	}
	return false
}

// Approved reports whether the order draft was approved, explicitly or
// automatically below the threshold.
func (w *Workflow) Approved() bool {
	if w.AutoApproved {
		return true
	}
	return w.Approval != nil && w.Approval.Resolution == contractx.ResolutionApproved
}

// PendingApproval reports whether the workflow is suspended on a human.
func (w *Workflow) PendingApproval() bool {
	return w != nil && w.Step == StepAwaitApproval &&
		w.Approval != nil && w.Approval.Resolution == contractx.ResolutionPending
}

// Result projects the workflow onto the caller-facing outcome.
func (w *Workflow) Result() contractx.PurchaseOutcome {
	out := contractx.PurchaseOutcome{
		WorkflowID:    w.ID,
		Step:          string(w.Step),
		FailureReason: w.FailureReason,
		FailureDetail: w.FailureDetail,
	}
	if len(w.Substitutions) > 0 {
		out.SubstitutedFrom = w.Substitutions[0].From
	}
	if w.Supplier != nil {
		rec := *w.Supplier
		out.Supplier = &rec
	}
	if w.Order != nil {
		o := *w.Order
		out.Order = &o
	}
	if w.Approval != nil {
		a := *w.Approval
		out.Approval = &a
	}
	return out
}

func (w *Workflow) Validate() error {
	if w == nil {
		return ErrNilWorkflow
	}
	if strings.TrimSpace(w.ID) == "" {
		return ErrInvalidWorkflowID
	}
	if w.Step == StepAwaitApproval && w.Approval == nil {
		return fmt.Errorf("workflow %s awaits approval without an approval request", w.ID)
	}
	if w.Order != nil && w.Order.Status == contractx.OrderConfirmed && !w.Approved() {
		return fmt.Errorf("workflow %s has a confirmed order without approval", w.ID)
	}
	if w.Step == StepFailed && w.FailureReason == "" {
		return fmt.Errorf("failed workflow %s must carry a failure reason", w.ID)
	}
	return nil
}

func stepName(s Step) string {
	if s == StepNew {
		return "NEW"
	}
	return string(s)
}
