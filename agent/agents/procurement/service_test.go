package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/memory"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/negotiation"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []contractx.ApprovalRequest
}

func (n *recordingNotifier) ApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return nil
}

type fixture struct {
	svc       *Service
	store     *statex.MemoryStore
	bank      *memory.InMemoryBank
	clock     *testClock
	notifier  *recordingNotifier
	suppliers map[string]*negotiation.Exchange
}

type supplierSpec struct {
	id          string
	currency    string
	priceFactor float64
}

func usd(id string) supplierSpec { return supplierSpec{id: id, currency: "USD", priceFactor: 1} }

// flakyStore fails the next n saves that match failWhen.
type flakyStore struct {
	*statex.MemoryStore
	failWhen func(*statex.Workflow) bool
	fails    atomic.Int32
}

func (s *flakyStore) Save(ctx context.Context, wf *statex.Workflow) error {
	if s.failWhen != nil && s.failWhen(wf) && s.fails.Add(-1) >= 0 {
		return errors.New("transient db error")
	}
	return s.MemoryStore.Save(ctx, wf)
}

func flakyFixture(t *testing.T, failWhen func(*statex.Workflow) bool, specs ...supplierSpec) (*fixture, *flakyStore) {
	t.Helper()
	flaky := &flakyStore{failWhen: failWhen}
	f := newFixtureWithStore(t, DefaultConfig(), func(m *statex.MemoryStore) statex.Store {
		flaky.MemoryStore = m
		return flaky
	}, specs...)
	return f, flaky
}

func newFixture(t *testing.T, cfg Config, specs ...supplierSpec) *fixture {
	t.Helper()
	return newFixtureWithStore(t, cfg, nil, specs...)
}

// newFixtureWithStore routes service saves through wrap when it is set.
func newFixtureWithStore(t *testing.T, cfg Config, wrap func(*statex.MemoryStore) statex.Store, specs ...supplierSpec) *fixture {
	t.Helper()

	f := &fixture{
		store:     statex.NewMemoryStore(),
		bank:      memory.NewInMemoryBank(),
		clock:     &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		notifier:  &recordingNotifier{},
		suppliers: map[string]*negotiation.Exchange{},
	}
	dir := negotiation.NewDirectory()
	for _, spec := range specs {
		ex, err := negotiation.NewExchange(negotiation.ExchangeConfig{
			ID:          spec.id,
			Currency:    spec.currency,
			QuoteTTL:    15 * time.Minute,
			PriceFactor: spec.priceFactor,
			Seed:        1,
		}, negotiation.WithExchangeClock(f.clock.Now))
		if err != nil {
			t.Fatalf("new exchange: %v", err)
		}
		if err := dir.Register(ex); err != nil {
			t.Fatalf("register: %v", err)
		}
		f.suppliers[spec.id] = ex
	}
	requester, err := negotiation.NewRequester(dir, nil, negotiation.RequesterConfig{
		CanonicalCurrency: "USD",
		PollInitial:       time.Millisecond,
		PollMax:           2 * time.Millisecond,
		PollMaxTries:      10,
	}, negotiation.WithRequesterClock(f.clock.Now))
	if err != nil {
		t.Fatalf("new requester: %v", err)
	}

	var store statex.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	var seq atomic.Int64
	svc, err := New(context.Background(), store, f.bank, requester, cfg,
		WithClock(f.clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("%04d", seq.Add(1)) }),
		WithNotifier(f.notifier),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) boost(t *testing.T, supplierID string) {
	t.Helper()
	if _, err := f.bank.RecordOutcome(context.Background(), supplierID, contractx.OutcomeSuccess); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
}

func taiwanRequest() contractx.PurchaseRequest {
	return contractx.PurchaseRequest{
		PartID:    "Logic-Core-CPU",
		Quantity:  50,
		Region:    "Taiwan",
		RiskLevel: contractx.RiskCritical,
	}
}

func TestPurchaseAboveThresholdAwaitsThenConfirms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Step != string(statex.StepAwaitApproval) {
		t.Fatalf("expected AWAIT_APPROVAL, got %s", out.Step)
	}
	if out.Order != nil {
		t.Fatalf("no order may exist before approval: %+v", out.Order)
	}
	if out.Approval == nil || out.Approval.ID != "APR-0002" {
		t.Fatalf("unexpected approval %+v", out.Approval)
	}
	draft := out.Approval.OrderDraft
	if draft.CanonicalTotal != 6500 || !draft.CanonicalKnown {
		t.Fatalf("expected canonical total 6500, got %+v", draft)
	}
	if !draft.Quote.Urgent || draft.Quote.ShippingFee != 500 {
		t.Fatalf("critical risk must request urgent shipping: %+v", draft.Quote)
	}

	pending, err := f.svc.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != out.Approval.ID {
		t.Fatalf("unexpected pending list %+v", pending)
	}
	if len(f.notifier.requests) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.requests))
	}

	done, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops@sentinell")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Step != string(statex.StepDone) {
		t.Fatalf("expected DONE, got %s (%s)", done.Step, done.FailureDetail)
	}
	if done.Order == nil || done.Order.Status != contractx.OrderConfirmed || done.Order.OrderID != "PO-10001" {
		t.Fatalf("unexpected order %+v", done.Order)
	}
	if done.Supplier == nil || done.Supplier.TotalTransactions != 1 || done.Supplier.ReliabilityScore <= 0.5 {
		t.Fatalf("expected updated supplier record, got %+v", done.Supplier)
	}

	wf, err := f.svc.Get(ctx, out.WorkflowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, step := range []statex.Step{statex.StepCheckMemory, statex.StepEvaluate, statex.StepAwaitApproval, statex.StepPlaceOrder, statex.StepUpdateMemory, statex.StepDone} {
		if !wf.Visited(step) {
			t.Fatalf("workflow never entered %s", step)
		}
	}
	if wf.Visited(statex.StepAutoApprove) {
		t.Fatalf("workflow must not be auto-approved")
	}
	if wf.Outcome != contractx.OutcomeSuccess {
		t.Fatalf("expected SUCCESS outcome, got %s", wf.Outcome)
	}
	if wf.Approval.ResolvedBy != "ops@sentinell" || wf.Approval.Resolution != contractx.ResolutionApproved {
		t.Fatalf("approval resolution not recorded: %+v", wf.Approval)
	}

	pending, _ = f.svc.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected no pending approvals, got %d", len(pending))
	}
}

func TestPurchaseBelowThresholdAutoApproves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 10})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Step != string(statex.StepDone) || out.Approval != nil {
		t.Fatalf("expected auto-approved DONE, got %+v", out)
	}
	if out.Order.TotalCost != 450 || out.Order.Status != contractx.OrderConfirmed {
		t.Fatalf("unexpected order %+v", out.Order)
	}
	wf, _ := f.svc.Get(ctx, out.WorkflowID)
	if !wf.AutoApproved || wf.Visited(statex.StepAwaitApproval) {
		t.Fatalf("expected auto approval path, history %+v", wf.History)
	}
	if len(f.notifier.requests) != 0 {
		t.Fatalf("auto approval must not notify")
	}
}

func TestTotalEqualToThresholdAwaitsApproval(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ApprovalThreshold = 450
	f := newFixture(t, cfg, usd("SUP-ACME"))

	out, err := f.svc.Purchase(context.Background(), contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 10})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Step != string(statex.StepAwaitApproval) {
		t.Fatalf("a total equal to the threshold must await approval, got %s", out.Step)
	}
}

func TestUnconvertibleTotalAwaitsApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), supplierSpec{id: "SUP-EU", currency: "EUR", priceFactor: 1})

	out, err := f.svc.Purchase(context.Background(), contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 1})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Step != string(statex.StepAwaitApproval) || out.Approval.OrderDraft.CanonicalKnown {
		t.Fatalf("expected approval for unknown canonical total, got %+v", out)
	}
}

func TestPurchaseRanksByReliabilityAndFallsThroughOnNoStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-A"), usd("SUP-B"), usd("SUP-C"))
	f.boost(t, "SUP-C")
	f.boost(t, "SUP-C")
	f.boost(t, "SUP-B")
	f.suppliers["SUP-C"].SetOutOfStock("Memory-DDR5", true)

	out, err := f.svc.Purchase(ctx, contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 2})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Order == nil || out.Order.SupplierID != "SUP-B" {
		t.Fatalf("expected SUP-B to fill the order, got %+v", out.Order)
	}
	wf, _ := f.svc.Get(ctx, out.WorkflowID)
	if got := fmt.Sprint(wf.Attempted); got != "[SUP-C SUP-B]" {
		t.Fatalf("unexpected attempt order %s", got)
	}
	if wf.Candidates[0].SupplierID != "SUP-C" || wf.Candidates[2].SupplierID != "SUP-A" {
		t.Fatalf("candidates not ranked by reliability: %+v", wf.Candidates)
	}
}

func TestPurchaseFailsWhenEverySupplierIsBelowFloor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))
	for range 2 {
		if _, err := f.bank.RecordOutcome(ctx, "SUP-ACME", contractx.OutcomeFailed); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}

	out, err := f.svc.Purchase(ctx, contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 1})
	if !errors.Is(err, contractx.ErrNoViableSupplier) {
		t.Fatalf("expected ErrNoViableSupplier, got %v", err)
	}
	if out.Step != string(statex.StepFailed) || out.FailureReason != contractx.CodeNoViableSupplier {
		t.Fatalf("unexpected outcome %+v", out)
	}
	wf, _ := f.svc.Get(ctx, out.WorkflowID)
	if len(wf.Excluded) != 1 || wf.Visited(statex.StepRequestQuote) {
		t.Fatalf("excluded supplier must never be quoted: %+v", wf)
	}
}

func TestPurchaseFailsWhenNoSupplierHasStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), usd("SUP-A"), usd("SUP-B"))
	f.suppliers["SUP-A"].SetOutOfStock("Memory-DDR5", true)
	f.suppliers["SUP-B"].SetOutOfStock("Memory-DDR5", true)

	out, err := f.svc.Purchase(context.Background(), contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 1})
	if !errors.Is(err, contractx.ErrNoViableSupplier) {
		t.Fatalf("expected ErrNoViableSupplier, got %v", err)
	}
	if out.FailureReason != contractx.CodeNoViableSupplier {
		t.Fatalf("unexpected failure reason %q", out.FailureReason)
	}
}

func TestResolveRejectEndsDenied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	denied, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionReject, "cfo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if denied.Step != string(statex.StepFailed) || denied.FailureReason != contractx.CodeApprovalDenied {
		t.Fatalf("expected APPROVAL_DENIED, got %+v", denied)
	}
	if denied.Order != nil {
		t.Fatalf("rejected draft must not be ordered")
	}
	rec, _ := f.bank.GetReliability(ctx, "SUP-ACME")
	if rec.TotalTransactions != 0 {
		t.Fatalf("rejection must not touch supplier memory: %+v", rec)
	}
}

func TestResolveTwiceIsAlreadyResolved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	before, _ := f.svc.Get(ctx, out.WorkflowID)

	_, err = f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionReject, "someone-else")
	if !errors.Is(err, contractx.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	after, _ := f.svc.Get(ctx, out.WorkflowID)
	if after.Version != before.Version || after.Step != statex.StepDone {
		t.Fatalf("second resolution changed the workflow: %d -> %d", before.Version, after.Version)
	}
	rec, _ := f.bank.GetReliability(ctx, "SUP-ACME")
	if rec.TotalTransactions != 1 {
		t.Fatalf("expected exactly one recorded outcome, got %d", rec.TotalTransactions)
	}
}

func TestConcurrentResolveOrdersOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, fmt.Sprintf("ops-%d", i))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, contractx.ErrAlreadyResolved):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful resolution, got %d", ok)
	}
}

func TestResolveUnknownApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	_, err := f.svc.Resolve(context.Background(), "APR-missing", contractx.DecisionApprove, "ops")
	if !errors.Is(err, contractx.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
	_, err = f.svc.Resolve(context.Background(), "APR-missing", contractx.DecisionApprove, " ")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing actor, got %v", err)
	}
}

func TestRejectedOrderRecordsFailedOutcome(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))
	f.suppliers["SUP-ACME"].RejectOrders("Memory-DDR5", true)

	out, err := f.svc.Purchase(ctx, contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 1})
	if !errors.Is(err, contractx.ErrOrderFailed) {
		t.Fatalf("expected ErrOrderFailed, got %v", err)
	}
	if out.FailureReason != contractx.CodeOrderFailed || out.Order == nil || out.Order.Status != contractx.OrderFailed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Supplier == nil || out.Supplier.FailedTransactions != 1 || out.Supplier.ReliabilityScore >= 0.5 {
		t.Fatalf("failed order must lower reliability: %+v", out.Supplier)
	}
}

func TestLateConfirmationRecordsLate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))
	f.suppliers["SUP-ACME"].SetDeliveryDelay(3)

	out, err := f.svc.Purchase(ctx, contractx.PurchaseRequest{PartID: "Memory-DDR5", Quantity: 1})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	wf, _ := f.svc.Get(ctx, out.WorkflowID)
	if wf.Outcome != contractx.OutcomeLate {
		t.Fatalf("expected LATE, got %s", wf.Outcome)
	}
	if s := out.Supplier.ReliabilityScore; s >= 0.5 || s <= 0.3 {
		t.Fatalf("late delivery must lower the score less than a failure: %+v", out.Supplier)
	}
}

func TestPriceChangeAfterApprovalUsesNextCandidateWithinApproval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-A"), usd("SUP-B"))
	f.boost(t, "SUP-A")

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Approval.OrderDraft.Quote.SupplierID != "SUP-A" {
		t.Fatalf("expected SUP-A draft, got %+v", out.Approval.OrderDraft.Quote)
	}
	f.suppliers["SUP-A"].SetPrice("Logic-Core-CPU", 130)

	done, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Order.SupplierID != "SUP-B" || done.Order.TotalCost != 6500 {
		t.Fatalf("expected SUP-B at the approved amount, got %+v", done.Order)
	}
	if done.SubstitutedFrom != "SUP-A" {
		t.Fatalf("expected outcome to name the approved supplier, got %q", done.SubstitutedFrom)
	}
	wf, err := f.svc.Get(ctx, done.WorkflowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(wf.Substitutions) != 1 {
		t.Fatalf("expected one substitution, got %+v", wf.Substitutions)
	}
	sub := wf.Substitutions[0]
	if sub.From != "SUP-A" || sub.To != "SUP-B" || !strings.Contains(sub.Reason, "PRICE_CHANGED") {
		t.Fatalf("unexpected substitution %+v", sub)
	}
}

func TestPriceChangeAboveApprovalFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-A"), supplierSpec{id: "SUP-B", currency: "USD", priceFactor: 1.1})
	f.boost(t, "SUP-A")

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	f.suppliers["SUP-A"].SetPrice("Logic-Core-CPU", 130)

	failed, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops")
	if !errors.Is(err, contractx.ErrNoViableSupplier) {
		t.Fatalf("expected ErrNoViableSupplier, got %v", err)
	}
	if failed.Order != nil {
		t.Fatalf("no order may be placed above the approved amount: %+v", failed.Order)
	}
}

func TestApprovalTTLExpiresPendingRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ApprovalTTL = time.Hour
	f := newFixture(t, cfg, usd("SUP-ACME"))

	swept, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	f.clock.Advance(30 * time.Minute)
	late, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	f.clock.Advance(45 * time.Minute)

	n, err := f.svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired approval, got %d", n)
	}
	wf, _ := f.svc.Get(ctx, swept.WorkflowID)
	if wf.FailureReason != contractx.CodeApprovalExpired || wf.Approval.Resolution != contractx.ResolutionExpired {
		t.Fatalf("unexpected expired workflow %+v", wf)
	}
	if _, err := f.svc.Resolve(ctx, swept.Approval.ID, contractx.DecisionApprove, "ops"); !errors.Is(err, contractx.ErrApprovalExpired) {
		t.Fatalf("expected ErrApprovalExpired for a swept approval, got %v", err)
	}

	f.clock.Advance(time.Hour)
	out, err := f.svc.Resolve(ctx, late.Approval.ID, contractx.DecisionApprove, "ops")
	if !errors.Is(err, contractx.ErrApprovalExpired) {
		t.Fatalf("expected ErrApprovalExpired on resolve, got %v", err)
	}
	if out.FailureReason != contractx.CodeApprovalExpired {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestApprovalWithoutTTLNeverExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	f.clock.Advance(30 * 24 * time.Hour)
	if n, err := f.svc.ExpireStale(ctx); err != nil || n != 0 {
		t.Fatalf("ExpireStale = %d, %v", n, err)
	}
	pending, _ := f.svc.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != out.Approval.ID {
		t.Fatalf("approval must stay pending: %+v", pending)
	}
}

func TestPurchaseValidatesRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), usd("SUP-ACME"))

	for _, req := range []contractx.PurchaseRequest{
		{PartID: "", Quantity: 1},
		{PartID: "Memory-DDR5", Quantity: 0},
		{PartID: "Memory-DDR5", Quantity: 1, RiskLevel: "SEVERE"},
	} {
		if _, err := f.svc.Purchase(ctx, req); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
	if _, err := f.svc.Get(ctx, "WF-0001"); !errors.Is(err, contractx.ErrWorkflowNotFound) {
		t.Fatalf("invalid requests must not persist workflows, got %v", err)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), nil, memory.NewInMemoryBank(), nil, DefaultConfig())
	if err == nil {
		t.Fatalf("expected error for missing store")
	}
	cfg := DefaultConfig()
	cfg.ReliabilityFloor = 2
	if _, err := New(context.Background(), statex.NewMemoryStore(), memory.NewInMemoryBank(), nil, cfg); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestApproveSaveFailureLeavesRequestPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, flaky := flakyFixture(t, func(wf *statex.Workflow) bool {
		return wf.Step == statex.StepPlaceOrder
	}, usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	flaky.fails.Store(1)

	if _, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops"); err == nil {
		t.Fatalf("expected the failed save to surface")
	}
	wf, err := f.svc.Get(ctx, out.WorkflowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !wf.PendingApproval() {
		t.Fatalf("approval must stay pending after a failed save, got step=%s resolution=%s", wf.Step, wf.Approval.Resolution)
	}
	pending, err := f.svc.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected the request to be listed as pending, got %d", len(pending))
	}

	done, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if done.Step != string(statex.StepDone) || done.Order == nil || done.Order.Status != contractx.OrderConfirmed {
		t.Fatalf("expected a confirmed order on retry, got %+v", done)
	}
}

func TestOrderSaveFailureFailsWorkflowVisibly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, flaky := flakyFixture(t, func(wf *statex.Workflow) bool {
		return wf.Step == statex.StepPlaceOrder && wf.Order != nil
	}, usd("SUP-ACME"))

	out, err := f.svc.Purchase(ctx, taiwanRequest())
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	flaky.fails.Store(1)

	if _, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops"); err == nil {
		t.Fatalf("expected the failed save to surface")
	}
	wf, err := f.svc.Get(ctx, out.WorkflowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if wf.Step != statex.StepFailed || wf.FailureReason != contractx.CodeInternal {
		t.Fatalf("expected FAILED with INTERNAL, got step=%s reason=%q", wf.Step, wf.FailureReason)
	}
	if !strings.Contains(wf.FailureDetail, "transient db error") {
		t.Fatalf("failure detail must carry the cause, got %q", wf.FailureDetail)
	}
	if wf.Order == nil || wf.Order.OrderID == "" {
		t.Fatalf("the placed order must be kept on the failed workflow: %+v", wf.Order)
	}

	if _, err := f.svc.Resolve(ctx, out.Approval.ID, contractx.DecisionApprove, "ops"); !errors.Is(err, contractx.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}
