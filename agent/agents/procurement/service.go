// Package procurement runs purchase workflows: supplier ranking, quoting,
// the approval gate, ordering and the memory update that follows.
package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	nodex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/nodes/procurement"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/keylock"
)

const tracerName = "sentinell/procurement"

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.deps.Now = now
		}
	}
}

// WithIDGenerator replaces uuid-based workflow and approval ids.
func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.deps.NewID = next
		}
	}
}

func WithNotifier(n contractx.ApprovalNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.deps.Notifier = n
		}
	}
}

type Service struct {
	deps   *nodex.Deps
	locks  *keylock.Map
	start  compose.Runnable[nodex.StartInput, nodex.GraphOutput]
	resume compose.Runnable[nodex.ResolveInput, nodex.GraphOutput]
}

func New(
	ctx context.Context,
	store statex.Store,
	memory contractx.MemoryBank,
	negotiator contractx.Negotiator,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid procurement config: %w", err)
	}
	s := &Service{
		deps: &nodex.Deps{
			Store:      store,
			Memory:     memory,
			Negotiator: negotiator,
			Notifier:   NopNotifier{},
			Policy: nodex.Policy{
				ApprovalThreshold: cfg.ApprovalThreshold,
				ReliabilityFloor:  cfg.ReliabilityFloor,
				ApprovalTTL:       cfg.ApprovalTTL,
				Currency:          cfg.Currency,
			},
			NewID: uuid.NewString,
			Now:   time.Now,
		},
		locks: keylock.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.deps.Validate(); err != nil {
		return nil, err
	}

	var err error
	if s.start, err = s.compileStartGraph(ctx); err != nil {
		return nil, err
	}
	if s.resume, err = s.compileResumeGraph(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Purchase starts a workflow. It returns a placed order, or a pending
// approval request when the total needs a human. A workflow that ends in
// FAILED is returned together with the matching taxonomy error.
func (s *Service) Purchase(ctx context.Context, req contractx.PurchaseRequest) (contractx.PurchaseOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "procurement.purchase",
		trace.WithAttributes(
			attribute.String("part_id", req.PartID),
			attribute.Int("quantity", req.Quantity),
			attribute.String("risk_level", string(req.RiskLevel)),
		))
	defer span.End()

	out, err := s.start.Invoke(ctx, nodex.StartInput{Request: req})
	if err != nil {
		return s.finishSpan(span, contractx.PurchaseOutcome{}, err)
	}
	log.Ctx(ctx).Info().
		Str("workflow_id", out.Outcome.WorkflowID).
		Str("step", out.Outcome.Step).
		Msg("purchase workflow returned")
	return s.finishSpan(span, out.Outcome, outcomeError(out.Outcome, ""))
}

// Resolve applies a human decision to a pending approval request. Resolving
// a request twice fails with ErrAlreadyResolved and leaves it untouched.
// A rejection is a successful resolution that ends in APPROVAL_DENIED.
func (s *Service) Resolve(ctx context.Context, approvalID string, decision contractx.Decision, actor string) (contractx.PurchaseOutcome, error) {
	approvalID = strings.TrimSpace(approvalID)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "procurement.resolve",
		trace.WithAttributes(
			attribute.String("approval_id", approvalID),
			attribute.String("decision", string(decision)),
		))
	defer span.End()

	unlock := s.locks.Lock(approvalID)
	defer unlock()

	out, err := s.resume.Invoke(ctx, nodex.ResolveInput{
		ApprovalID: approvalID,
		Decision:   decision,
		Actor:      actor,
	})
	if err != nil {
		if errors.Is(err, statex.ErrStaleWorkflow) {
			err = fmt.Errorf("%w: %s: %v", contractx.ErrAlreadyResolved, approvalID, err)
		}
		return s.finishSpan(span, contractx.PurchaseOutcome{}, err)
	}
	return s.finishSpan(span, out.Outcome, outcomeError(out.Outcome, contractx.CodeApprovalDenied))
}

func (s *Service) Get(ctx context.Context, workflowID string) (*statex.Workflow, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, fmt.Errorf("%w: workflow id is required", contractx.ErrValidation)
	}
	return s.deps.Store.Load(ctx, workflowID)
}

// Pending lists approval requests still waiting for a decision, oldest
// first.
func (s *Service) Pending(ctx context.Context) ([]contractx.ApprovalRequest, error) {
	wfs, err := s.deps.Store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]contractx.ApprovalRequest, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, *wf.Approval)
	}
	return out, nil
}

// ExpireStale fails pending approvals older than the configured TTL and
// returns how many it expired. It does nothing when the TTL is zero.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.deps.Policy.ApprovalTTL <= 0 {
		return 0, nil
	}
	wfs, err := s.deps.Store.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, wf := range wfs {
		if !nodex.Expired(wf, s.deps) {
			continue
		}
		ok, err := s.expire(ctx, wf.Approval.ID)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, approvalID string) (bool, error) {
	unlock := s.locks.Lock(approvalID)
	defer unlock()

	wf, err := s.deps.Store.FindByApproval(ctx, approvalID)
	if err != nil {
		return false, err
	}
	if !nodex.Expired(wf, s.deps) {
		return false, nil
	}
	if err := nodex.ExpireApproval(ctx, &nodex.GraphState{Workflow: wf}, s.deps); err != nil {
		if errors.Is(err, statex.ErrStaleWorkflow) {
			return false, nil
		}
		return false, err
	}
	log.Ctx(ctx).Info().Str("workflow_id", wf.ID).Str("approval_id", approvalID).Msg("approval expired")
	return true, nil
}

func (s *Service) finishSpan(span trace.Span, out contractx.PurchaseOutcome, err error) (contractx.PurchaseOutcome, error) {
	if out.WorkflowID != "" {
		span.SetAttributes(
			attribute.String("workflow_id", out.WorkflowID),
			attribute.String("step", out.Step),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, contractx.Code(err))
	}
	return out, err
}

// outcomeError turns a FAILED outcome into its sentinel error, except for
// the reason the caller asked for.
func outcomeError(out contractx.PurchaseOutcome, expected string) error {
	if out.Step != string(statex.StepFailed) || out.FailureReason == expected {
		return nil
	}
	sentinel, ok := contractx.ErrorForCode(out.FailureReason)
	if !ok {
		return fmt.Errorf("workflow %s failed: %s: %s", out.WorkflowID, out.FailureReason, out.FailureDetail)
	}
	return fmt.Errorf("%w: workflow %s: %s", sentinel, out.WorkflowID, out.FailureDetail)
}
