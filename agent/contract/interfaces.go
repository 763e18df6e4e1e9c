package contract

import "context"

type Reasoner interface {
	Reason(ctx context.Context, req JudgmentRequest) (Judgment, error)
}

// ToolGateway never returns an error for source failures; it reports them
// with Digest.Available=false.
type ToolGateway interface {
	Query(ctx context.Context, kind SourceKind, params map[string]any) Digest
}

type MemoryBank interface {
	GetReliability(ctx context.Context, supplierID string) (SupplierRecord, error)
	RecordOutcome(ctx context.Context, supplierID string, outcome Outcome) (SupplierRecord, error)
	History(ctx context.Context, supplierID string) ([]ScoreAdjustment, error)
}

type Supplier interface {
	ID() string
	RequestQuote(ctx context.Context, req QuoteRequest) (Quote, error)
	PlaceOrder(ctx context.Context, quote Quote) (Order, error)
	OrderStatus(ctx context.Context, orderID string) (Order, error)
}

type Negotiator interface {
	Candidates(partID string) []string
	Quote(ctx context.Context, supplierID string, req QuoteRequest) (Quote, error)
	Order(ctx context.Context, supplierID string, quote Quote) (Order, error)
	CanonicalTotal(ctx context.Context, quote Quote) (float64, bool)
}

type ApprovalNotifier interface {
	ApprovalRequested(ctx context.Context, req ApprovalRequest) error
}
