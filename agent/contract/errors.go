package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrUnavailable       = errors.New("source unavailable")
	ErrScanInconclusive  = errors.New("scan inconclusive: every risk dimension timed out")
	ErrNoViableSupplier  = errors.New("no viable supplier")
	ErrApprovalDenied    = errors.New("approval denied")
	ErrApprovalExpired   = errors.New("approval expired")
	ErrMalformedJudgment = errors.New("malformed judgment")
	ErrAlreadyResolved   = errors.New("approval already resolved")
	ErrApprovalNotFound  = errors.New("approval not found")
	ErrWorkflowNotFound  = errors.New("workflow not found")

	ErrNoStock      = errors.New("no stock")
	ErrPriceChanged = errors.New("price changed")
	ErrQuoteExpired = errors.New("quote expired")
	ErrOrderFailed  = errors.New("order failed")
	ErrUnknownOrder = errors.New("unknown order")
)

// Error codes exposed to callers. They are stable and appear in API
// responses and in Workflow.FailureReason.
const (
	CodeUnavailable       = "UNAVAILABLE"
	CodeScanInconclusive  = "SCAN_INCONCLUSIVE"
	CodeNoViableSupplier  = "NO_VIABLE_SUPPLIER"
	CodeApprovalDenied    = "APPROVAL_DENIED"
	CodeApprovalExpired   = "APPROVAL_EXPIRED"
	CodeMalformedJudgment = "MALFORMED_JUDGMENT"
	CodeAlreadyResolved   = "ALREADY_RESOLVED"
	CodeApprovalNotFound  = "APPROVAL_NOT_FOUND"
	CodeWorkflowNotFound  = "WORKFLOW_NOT_FOUND"
	CodeNoStock           = "NO_STOCK"
	CodePriceChanged      = "PRICE_CHANGED"
	CodeQuoteExpired      = "QUOTE_EXPIRED"
	CodeOrderFailed       = "ORDER_FAILED"
	CodeUnknownOrder      = "UNKNOWN_ORDER"
	CodeValidation        = "VALIDATION_FAILED"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnavailable, CodeUnavailable},
	{ErrScanInconclusive, CodeScanInconclusive},
	{ErrNoViableSupplier, CodeNoViableSupplier},
	{ErrApprovalDenied, CodeApprovalDenied},
	{ErrApprovalExpired, CodeApprovalExpired},
	{ErrMalformedJudgment, CodeMalformedJudgment},
	{ErrAlreadyResolved, CodeAlreadyResolved},
	{ErrApprovalNotFound, CodeApprovalNotFound},
	{ErrWorkflowNotFound, CodeWorkflowNotFound},
	{ErrNoStock, CodeNoStock},
	{ErrPriceChanged, CodePriceChanged},
	{ErrQuoteExpired, CodeQuoteExpired},
	{ErrOrderFailed, CodeOrderFailed},
	{ErrUnknownOrder, CodeUnknownOrder},
	{ErrValidation, CodeValidation},
	{ErrSchemaViolation, CodeMalformedJudgment},
}

// Code maps an error to its taxonomy code. Unknown errors map to INTERNAL.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorForCode is the inverse of Code, used by transports to rebuild
// sentinel errors from wire codes.
func ErrorForCode(code string) (error, bool) {
	for _, c := range codes {
		if c.code == code {
			return c.err, true
		}
	}
	return nil, false
}

var httpStatuses = map[string]int{
	CodeUnavailable:       503,
	CodeScanInconclusive:  504,
	CodeNoViableSupplier:  409,
	CodeApprovalDenied:    409,
	CodeApprovalExpired:   410,
	CodeMalformedJudgment: 502,
	CodeAlreadyResolved:   409,
	CodeApprovalNotFound:  404,
	CodeWorkflowNotFound:  404,
	CodeNoStock:           409,
	CodePriceChanged:      409,
	CodeQuoteExpired:      410,
	CodeOrderFailed:       502,
	CodeUnknownOrder:      404,
	CodeValidation:        400,
}

// HTTPStatus is the response status used for err by the HTTP transports.
func HTTPStatus(err error) int {
	if s, ok := httpStatuses[Code(err)]; ok {
		return s
	}
	return 500
}
