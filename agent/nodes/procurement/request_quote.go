package procurementnode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// RequestQuote walks the ranked candidates until one quotes. CRITICAL risk
// asks for urgent shipping.
func RequestQuote(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	urgent := wf.RiskLevel == contractx.RiskCritical
	note := ""
	if urgent {
		note = "urgent"
	}
	if err := advance(ctx, st, d, statex.StepRequestQuote, note); err != nil {
		return nil, err
	}

	req := contractx.QuoteRequest{PartID: wf.PartID, Quantity: wf.Quantity, Urgent: urgent}
	var misses []string
	for _, c := range wf.Candidates {
		err := quoteFrom(ctx, d, wf, c.SupplierID, req)
		if err == nil {
			return st, d.Store.Save(ctx, wf)
		}
		if !fallsThrough(err) {
			return nil, abort(ctx, st, d, err)
		}
		log.Ctx(ctx).Info().Err(err).
			Str("workflow_id", wf.ID).
			Str("supplier_id", c.SupplierID).
			Msg("supplier could not quote, trying next candidate")
		misses = append(misses, c.SupplierID+": "+contractx.Code(err))
	}
	return st, fail(ctx, st, d, contractx.CodeNoViableSupplier, "no candidate could quote: "+strings.Join(misses, "; "))
}

// quoteFrom records the attempt and, on success, stores the quote and its
// canonical total on the workflow.
func quoteFrom(ctx context.Context, d *Deps, wf *statex.Workflow, supplierID string, req contractx.QuoteRequest) error {
	wf.Attempted = append(wf.Attempted, supplierID)
	q, err := d.Negotiator.Quote(ctx, supplierID, req)
	if err != nil {
		return err
	}
	if q.SupplierID == "" {
		q.SupplierID = supplierID
	}
	total, known := d.Negotiator.CanonicalTotal(ctx, q)
	wf.Quote = &q
	wf.CanonicalTotal = total
	wf.CanonicalKnown = known
	return nil
}

// fallsThrough reports supplier errors that move on to the next candidate.
func fallsThrough(err error) bool {
	return errors.Is(err, contractx.ErrNoStock) ||
		errors.Is(err, contractx.ErrPriceChanged) ||
		errors.Is(err, contractx.ErrQuoteExpired) ||
		errors.Is(err, contractx.ErrUnavailable)
}

func nextCandidate(wf *statex.Workflow) (string, bool) {
	tried := make(map[string]bool, len(wf.Attempted))
	for _, id := range wf.Attempted {
		tried[id] = true
	}
	for _, c := range wf.Candidates {
		if !tried[c.SupplierID] {
			return c.SupplierID, true
		}
	}
	return "", false
}

func formatTotal(wf *statex.Workflow, currency string) string {
	if !wf.CanonicalKnown {
		return fmt.Sprintf("%.2f %s (no %s conversion)", wf.Quote.Total(), wf.Quote.Currency, currency)
	}
	return fmt.Sprintf("%.2f %s", wf.CanonicalTotal, currency)
}
