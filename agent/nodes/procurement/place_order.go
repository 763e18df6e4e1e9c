package procurementnode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// PlaceOrder sends the approved draft to its supplier. When that supplier
// runs out of stock or moves its price, the remaining candidates are tried,
// but only with a quote that stays inside what was approved.
func PlaceOrder(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	if !wf.Approved() {
		return nil, abort(ctx, st, d, fmt.Errorf("%w: order draft for %s is not approved", contractx.ErrValidation, wf.ID))
	}
	if wf.Step != statex.StepPlaceOrder {
		if err := advance(ctx, st, d, statex.StepPlaceOrder, wf.Quote.SupplierID); err != nil {
			return nil, abort(ctx, st, d, err)
		}
	}
	logger := log.Ctx(ctx).With().Str("workflow_id", wf.ID).Logger()
	approved := wf.CanonicalTotal

	current := wf.Quote.SupplierID
	order, err := d.Negotiator.Order(ctx, current, *wf.Quote)
	var misses []string
	for err != nil && fallsThrough(err) {
		misses = append(misses, current+": "+contractx.Code(err))
		logger.Info().Err(err).Str("supplier_id", current).Msg("supplier cannot fill the order, trying next candidate")

		next, ok := nextCandidate(wf)
		if !ok {
			return st, fail(ctx, st, d, contractx.CodeNoViableSupplier, "no candidate could fill the order: "+strings.Join(misses, "; "))
		}
		current = next
		prev := wf.Quote.SupplierID
		req := contractx.QuoteRequest{PartID: wf.PartID, Quantity: wf.Quantity, Urgent: wf.RiskLevel == contractx.RiskCritical}
		if err = quoteFrom(ctx, d, wf, next, req); err != nil {
			if fallsThrough(err) {
				continue
			}
			return nil, abort(ctx, st, d, err)
		}
		if !withinApproval(wf, approved, d.Policy) {
			err = fmt.Errorf("%w: %s quoted %s, above the approved amount", contractx.ErrPriceChanged, next, formatTotal(wf, d.Policy.Currency))
			continue
		}
		wf.Substitutions = append(wf.Substitutions, statex.Substitution{
			From:   prev,
			To:     next,
			Reason: strings.Join(misses, "; "),
			At:     d.now().UTC(),
		})
		logger.Info().Str("from", prev).Str("to", next).Msg("order moved to another supplier within the approved amount")
		if err = d.Store.Save(ctx, wf); err != nil {
			return nil, abort(ctx, st, d, err)
		}
		order, err = d.Negotiator.Order(ctx, next, *wf.Quote)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, abort(ctx, st, d, err)
		}
		logger.Warn().Err(err).Str("supplier_id", wf.Quote.SupplierID).Msg("order failed at supplier")
		order = contractx.Order{
			QuoteID:    wf.Quote.QuoteID,
			SupplierID: wf.Quote.SupplierID,
			PartID:     wf.PartID,
			Quantity:   wf.Quantity,
			TotalCost:  wf.Quote.Total(),
			Currency:   wf.Quote.Currency,
			Status:     contractx.OrderFailed,
			Message:    err.Error(),
		}
	}
	if order.SupplierID == "" {
		order.SupplierID = wf.Quote.SupplierID
	}
	wf.Order = &order
	if err := d.Store.Save(ctx, wf); err != nil {
		return nil, abort(ctx, st, d, err)
	}
	return st, nil
}

// withinApproval checks a replacement quote against the amount a human
// approved, or against the threshold for auto-approved drafts.
func withinApproval(wf *statex.Workflow, approved float64, p Policy) bool {
	if !wf.CanonicalKnown {
		return false
	}
	if wf.AutoApproved {
		return wf.CanonicalTotal < p.ApprovalThreshold
	}
	return wf.CanonicalTotal <= approved+0.005
}
