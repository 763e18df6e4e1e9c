package procurementnode

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

// CheckMemory ranks the part's suppliers by reliability and drops those
// below the floor. No eligible supplier fails the workflow.
func CheckMemory(ctx context.Context, st *GraphState, d *Deps) (*GraphState, error) {
	wf := st.Workflow
	if err := advance(ctx, st, d, statex.StepCheckMemory, ""); err != nil {
		return nil, err
	}

	var eligible, excluded []statex.Candidate
	for _, id := range d.Negotiator.Candidates(wf.PartID) {
		rec, err := d.Memory.GetReliability(ctx, id)
		if err != nil {
			return nil, abort(ctx, st, d, fmt.Errorf("read reliability of %s: %w", id, err))
		}
		c := statex.Candidate{SupplierID: id, Score: rec.ReliabilityScore}
		if rec.ReliabilityScore < d.Policy.ReliabilityFloor {
			excluded = append(excluded, c)
			continue
		}
		eligible = append(eligible, c)
	}
	RankCandidates(eligible)
	RankCandidates(excluded)
	wf.Candidates = eligible
	wf.Excluded = excluded

	log.Ctx(ctx).Debug().
		Str("workflow_id", wf.ID).
		Int("eligible", len(eligible)).
		Int("excluded", len(excluded)).
		Msg("supplier candidates ranked")

	if len(eligible) == 0 {
		detail := fmt.Sprintf("no supplier for %s at or above reliability %.2f", wf.PartID, d.Policy.ReliabilityFloor)
		if len(excluded) > 0 {
			ids := make([]string, len(excluded))
			for i, c := range excluded {
				ids[i] = fmt.Sprintf("%s=%.2f", c.SupplierID, c.Score)
			}
			detail += " (excluded " + strings.Join(ids, ", ") + ")"
		}
		return st, fail(ctx, st, d, contractx.CodeNoViableSupplier, detail)
	}
	return st, d.Store.Save(ctx, wf)
}

// RankCandidates orders by reliability descending, then supplier id.
func RankCandidates(cs []statex.Candidate) {
	slices.SortStableFunc(cs, func(a, b statex.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.SupplierID, b.SupplierID)
	})
}
