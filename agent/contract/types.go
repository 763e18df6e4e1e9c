package contract

import (
	"fmt"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity orders risk levels. Unknown levels rank below LOW.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

func (r RiskLevel) Valid() bool { return r.Severity() > 0 }

func ParseRiskLevel(s string) (RiskLevel, error) {
	lvl := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !lvl.Valid() {
		return "", fmt.Errorf("%w: unknown risk level %q", ErrValidation, s)
	}
	return lvl, nil
}

// MaxRisk returns the most severe of the given levels, LOW when empty.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l.Severity() > out.Severity() {
			out = l
		}
	}
	return out
}

type Dimension string

const (
	DimensionPolitical Dimension = "POLITICAL"
	DimensionWeather   Dimension = "WEATHER"
	DimensionLogistics Dimension = "LOGISTICS"
)

func AllDimensions() []Dimension {
	return []Dimension{DimensionPolitical, DimensionWeather, DimensionLogistics}
}

func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DimensionPolitical, DimensionWeather, DimensionLogistics:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown dimension %q", ErrValidation, s)
}

type RiskReport struct {
	Region        string                 `json:"region"`
	RiskLevel     RiskLevel              `json:"risk_level"`
	AffectedParts []string               `json:"affected_parts"`
	Summary       string                 `json:"summary"`
	Caveats       []string               `json:"caveats,omitempty"`
	Findings      []InvestigationFinding `json:"findings,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

type InvestigationFinding struct {
	Dimension      Dimension `json:"dimension"`
	RiskLevel      RiskLevel `json:"risk_level"`
	EvidenceDigest string    `json:"evidence_digest"`
	IterationsUsed int       `json:"iterations_used"`
	Confidence     float64   `json:"confidence"`
	LowConfidence  bool      `json:"low_confidence,omitempty"`
	AffectedParts  []string  `json:"affected_parts,omitempty"`
	Rationale      string    `json:"rationale,omitempty"`
	TimedOut       bool      `json:"timed_out,omitempty"`
}

// Judgment is the validated output of a Reasoner.
type Judgment struct {
	RiskLevel     RiskLevel     `json:"risk_level"`
	Confidence    float64       `json:"confidence"`
	AffectedParts []string      `json:"affected_parts"`
	Rationale     string        `json:"rationale"`
	FollowUp      []ToolRequest `json:"follow_up,omitempty"`
}

func (j Judgment) Validate() error {
	if !j.RiskLevel.Valid() {
		return fmt.Errorf("%w: risk_level %q", ErrSchemaViolation, j.RiskLevel)
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaViolation, j.Confidence)
	}
	for _, p := range j.AffectedParts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: empty affected part", ErrSchemaViolation)
		}
	}
	for _, f := range j.FollowUp {
		if strings.TrimSpace(f.Tool) == "" {
			return fmt.Errorf("%w: follow_up without tool", ErrSchemaViolation)
		}
	}
	return nil
}

type JudgmentRequest struct {
	Task      string    `json:"task"`
	Region    string    `json:"region"`
	Dimension Dimension `json:"dimension"`
	Evidence  []string  `json:"evidence"`
	Iteration int       `json:"iteration"`
	// Strict asks the reasoner for the tightened output contract.
	Strict bool `json:"strict,omitempty"`
}

type QuoteRequest struct {
	PartID   string `json:"part_id"`
	Quantity int    `json:"quantity"`
	Urgent   bool   `json:"urgent,omitempty"`
}

func (q QuoteRequest) Validate() error {
	if strings.TrimSpace(q.PartID) == "" {
		return fmt.Errorf("%w: part_id is required", ErrValidation)
	}
	if q.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return nil
}

type Quote struct {
	QuoteID      string    `json:"quote_id"`
	SupplierID   string    `json:"supplier_id"`
	PartID       string    `json:"part_id"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	ShippingFee  float64   `json:"shipping_fee"`
	Currency     string    `json:"currency"`
	LeadTimeDays int       `json:"lead_time_days"`
	ExpiresAt    time.Time `json:"expires_at"`
	Urgent       bool      `json:"urgent,omitempty"`
}

// Total is the quote amount in the quote's own currency.
func (q Quote) Total() float64 {
	return q.UnitPrice*float64(q.Quantity) + q.ShippingFee
}

func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

type OrderStatus string

const (
	OrderPlaced    OrderStatus = "PLACED"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderFailed    OrderStatus = "FAILED"
)

func (s OrderStatus) Terminal() bool { return s == OrderConfirmed || s == OrderFailed }

type Order struct {
	OrderID      string      `json:"order_id"`
	QuoteID      string      `json:"quote_id,omitempty"`
	SupplierID   string      `json:"supplier_id"`
	PartID       string      `json:"part_id"`
	Quantity     int         `json:"quantity"`
	TotalCost    float64     `json:"total_cost"`
	Currency     string      `json:"currency"`
	Status       OrderStatus `json:"status"`
	LeadTimeDays int         `json:"lead_time_days,omitempty"`
	Message      string      `json:"message,omitempty"`
}

type Resolution string

const (
	ResolutionPending  Resolution = "PENDING"
	ResolutionApproved Resolution = "APPROVED"
	ResolutionRejected Resolution = "REJECTED"
	ResolutionExpired  Resolution = "EXPIRED"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVE", "APPROVED":
		return DecisionApprove, nil
	case "REJECT", "REJECTED", "DENY":
		return DecisionReject, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", ErrValidation, s)
}

type OrderDraft struct {
	Quote          Quote   `json:"quote"`
	CanonicalTotal float64 `json:"canonical_total"`
	// CanonicalKnown is false when currency conversion was unavailable.
	CanonicalKnown bool `json:"canonical_known"`
}

type ApprovalRequest struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	OrderDraft  OrderDraft `json:"order_draft"`
	Reason      string     `json:"reason"`
	RequestedAt time.Time  `json:"requested_at"`
	Resolution  Resolution `json:"resolution"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}

type SupplierRecord struct {
	SupplierID         string    `json:"supplier_id"`
	ReliabilityScore   float64   `json:"reliability_score"`
	TotalTransactions  int       `json:"total_transactions"`
	FailedTransactions int       `json:"failed_transactions"`
	LastUpdated        time.Time `json:"last_updated"`
}

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeLate    Outcome = "LATE"
	OutcomeFailed  Outcome = "FAILED"
)

func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeLate || o == OutcomeFailed
}

type ScoreAdjustment struct {
	SupplierID string    `json:"supplier_id"`
	Outcome    Outcome   `json:"outcome"`
	Before     float64   `json:"before"`
	After      float64   `json:"after"`
	At         time.Time `json:"at"`
}

type SourceKind string

const (
	SourceNews      SourceKind = "NEWS_SEARCH"
	SourceInventory SourceKind = "INVENTORY_QUERY"
	SourceCurrency  SourceKind = "CURRENCY_CONVERT"
)

// Digest is what the tool layer hands back to agents. Content is always
// bounded for news; Data carries structured results for inventory and
// currency lookups.
type Digest struct {
	Kind      SourceKind     `json:"kind"`
	Content   string         `json:"content"`
	Data      map[string]any `json:"data,omitempty"`
	Available bool           `json:"available"`
	Truncated bool           `json:"truncated,omitempty"`
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type PurchaseRequest struct {
	PartID    string    `json:"part_id"`
	Quantity  int       `json:"quantity"`
	Region    string    `json:"region,omitempty"`
	RiskLevel RiskLevel `json:"risk_level,omitempty"`
}

func (p PurchaseRequest) Validate() error {
	if strings.TrimSpace(p.PartID) == "" {
		return fmt.Errorf("%w: part_id is required", ErrValidation)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if p.RiskLevel != "" && !p.RiskLevel.Valid() {
		return fmt.Errorf("%w: risk_level %q", ErrValidation, p.RiskLevel)
	}
	return nil
}

// PurchaseOutcome is the result of starting or resuming a procurement
// workflow. Exactly one of Order or Approval is set on success paths.
type PurchaseOutcome struct {
	WorkflowID    string           `json:"workflow_id"`
	Step          string           `json:"step"`
	Order         *Order           `json:"order,omitempty"`
	Approval      *ApprovalRequest `json:"approval,omitempty"`
	Supplier      *SupplierRecord  `json:"supplier,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	FailureDetail string           `json:"failure_detail,omitempty"`

	// SubstitutedFrom names the approved supplier when the order went to
	// another candidate.
	SubstitutedFrom string `json:"substituted_from,omitempty"`
}
