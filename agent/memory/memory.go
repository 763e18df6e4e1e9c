// Package memory keeps long-term supplier reliability. Scores are recomputed
// from every recorded outcome and never reset.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var _ contractx.MemoryBank = (*InMemoryBank)(nil)

// InMemoryBank is a process-local MemoryBank for tests and offline runs.
type InMemoryBank struct {
	mu      sync.Mutex
	records map[string]contractx.SupplierRecord
	history map[string][]contractx.ScoreAdjustment
	now     func() time.Time
}

func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{
		records: make(map[string]contractx.SupplierRecord),
		history: make(map[string][]contractx.ScoreAdjustment),
		now:     time.Now,
	}
}

func (b *InMemoryBank) GetReliability(_ context.Context, supplierID string) (contractx.SupplierRecord, error) {
	if err := validateSupplierID(supplierID); err != nil {
		return contractx.SupplierRecord{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.records[supplierID]; ok {
		return rec, nil
	}
	return neutralRecord(supplierID), nil
}

func (b *InMemoryBank) RecordOutcome(_ context.Context, supplierID string, outcome contractx.Outcome) (contractx.SupplierRecord, error) {
	if err := validateSupplierID(supplierID); err != nil {
		return contractx.SupplierRecord{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[supplierID]
	if !ok {
		rec = neutralRecord(supplierID)
	}
	before := rec.ReliabilityScore
	next, err := apply(rec, outcome)
	if err != nil {
		return contractx.SupplierRecord{}, err
	}
	now := b.now().UTC()
	next.LastUpdated = now
	b.records[supplierID] = next
	b.history[supplierID] = append(b.history[supplierID], contractx.ScoreAdjustment{
		SupplierID: supplierID,
		Outcome:    outcome,
		Before:     before,
		After:      next.ReliabilityScore,
		At:         now,
	})
	return next, nil
}

func (b *InMemoryBank) History(_ context.Context, supplierID string) ([]contractx.ScoreAdjustment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]contractx.ScoreAdjustment, len(b.history[supplierID]))
	copy(out, b.history[supplierID])
	return out, nil
}

func validateSupplierID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: supplier id is required", contractx.ErrValidation)
	}
	return nil
}
