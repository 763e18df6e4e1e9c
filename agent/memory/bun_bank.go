package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	dbx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/db"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/keylock"
)

type supplierRecordRow struct {
	bun.BaseModel `bun:"table:supplier_records"`

	SupplierID         string    `bun:"supplier_id,pk"`
	ReliabilityScore   float64   `bun:"reliability_score,notnull"`
	TotalTransactions  int       `bun:"total_transactions,notnull"`
	FailedTransactions int       `bun:"failed_transactions,notnull"`
	LastUpdated        time.Time `bun:"last_updated,notnull"`
}

type scoreHistoryRow struct {
	bun.BaseModel `bun:"table:supplier_score_history"`

	ID          int64     `bun:"id,pk,autoincrement"`
	SupplierID  string    `bun:"supplier_id,notnull"`
	Outcome     string    `bun:"outcome,notnull"`
	ScoreBefore float64   `bun:"score_before,notnull"`
	ScoreAfter  float64   `bun:"score_after,notnull"`
	RecordedAt  time.Time `bun:"recorded_at,notnull"`
}

var _ contractx.MemoryBank = (*BunBank)(nil)

// BunBank persists supplier records and their adjustment history. Updates
// for one supplier are serialised in-process and run in a transaction so the
// record and its history row commit together.
type BunBank struct {
	db    *bun.DB
	locks *keylock.Map
	now   func() time.Time
}

func NewBunBank(ctx context.Context, db *bun.DB) (*BunBank, error) {
	if db == nil {
		return nil, errors.New("memory: db is required")
	}
	b := &BunBank{db: db, locks: keylock.New(), now: time.Now}
	if err := b.migrate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BunBank) migrate(ctx context.Context) error {
	models := []any{(*supplierRecordRow)(nil), (*scoreHistoryRow)(nil)}
	for _, m := range models {
		if _, err := b.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("memory: create table: %w", err)
		}
	}
	_, err := b.db.NewCreateIndex().
		Model((*scoreHistoryRow)(nil)).
		Index("supplier_score_history_supplier_idx").
		Column("supplier_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("memory: create index: %w", err)
	}
	return nil
}

func (b *BunBank) GetReliability(ctx context.Context, supplierID string) (contractx.SupplierRecord, error) {
	if err := validateSupplierID(supplierID); err != nil {
		return contractx.SupplierRecord{}, err
	}
	row := new(supplierRecordRow)
	err := b.db.NewSelect().Model(row).Where("supplier_id = ?", supplierID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return neutralRecord(supplierID), nil
	}
	if err != nil {
		return contractx.SupplierRecord{}, fmt.Errorf("memory: load %s: %w", supplierID, err)
	}
	return row.record(), nil
}

func (b *BunBank) RecordOutcome(ctx context.Context, supplierID string, outcome contractx.Outcome) (contractx.SupplierRecord, error) {
	if err := validateSupplierID(supplierID); err != nil {
		return contractx.SupplierRecord{}, err
	}
	if !outcome.Valid() {
		return contractx.SupplierRecord{}, fmt.Errorf("%w: unknown outcome %q", contractx.ErrValidation, outcome)
	}

	unlock := b.locks.Lock(supplierID)
	defer unlock()

	var out contractx.SupplierRecord
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, err := b.loadForUpdate(ctx, tx, supplierID)
		if err != nil {
			return err
		}
		before := rec.ReliabilityScore
		next, err := apply(rec, outcome)
		if err != nil {
			return err
		}
		now := b.now().UTC()
		next.LastUpdated = now

		row := rowFromRecord(next)
		_, err = tx.NewInsert().
			Model(row).
			On("CONFLICT (supplier_id) DO UPDATE").
			Set("reliability_score = EXCLUDED.reliability_score").
			Set("total_transactions = EXCLUDED.total_transactions").
			Set("failed_transactions = EXCLUDED.failed_transactions").
			Set("last_updated = EXCLUDED.last_updated").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("memory: upsert %s: %w", supplierID, err)
		}

		hist := &scoreHistoryRow{
			SupplierID:  supplierID,
			Outcome:     string(outcome),
			ScoreBefore: before,
			ScoreAfter:  next.ReliabilityScore,
			RecordedAt:  now,
		}
		if _, err := tx.NewInsert().Model(hist).Exec(ctx); err != nil {
			return fmt.Errorf("memory: append history %s: %w", supplierID, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return contractx.SupplierRecord{}, err
	}

	log.Ctx(ctx).Debug().
		Str("supplier_id", supplierID).
		Str("outcome", string(outcome)).
		Float64("score", out.ReliabilityScore).
		Msg("supplier reliability updated")
	return out, nil
}

func (b *BunBank) loadForUpdate(ctx context.Context, tx bun.Tx, supplierID string) (contractx.SupplierRecord, error) {
	row := new(supplierRecordRow)
	q := tx.NewSelect().Model(row).Where("supplier_id = ?", supplierID)
	if dbx.IsPostgres(tx) {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return neutralRecord(supplierID), nil
	}
	if err != nil {
		return contractx.SupplierRecord{}, fmt.Errorf("memory: load %s: %w", supplierID, err)
	}
	return row.record(), nil
}

func (b *BunBank) History(ctx context.Context, supplierID string) ([]contractx.ScoreAdjustment, error) {
	var rows []scoreHistoryRow
	err := b.db.NewSelect().
		Model(&rows).
		Where("supplier_id = ?", supplierID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: history %s: %w", supplierID, err)
	}
	out := make([]contractx.ScoreAdjustment, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.ScoreAdjustment{
			SupplierID: r.SupplierID,
			Outcome:    contractx.Outcome(r.Outcome),
			Before:     r.ScoreBefore,
			After:      r.ScoreAfter,
			At:         r.RecordedAt,
		})
	}
	return out, nil
}

func (r *supplierRecordRow) record() contractx.SupplierRecord {
	return contractx.SupplierRecord{
		SupplierID:         r.SupplierID,
		ReliabilityScore:   r.ReliabilityScore,
		TotalTransactions:  r.TotalTransactions,
		FailedTransactions: r.FailedTransactions,
		LastUpdated:        r.LastUpdated,
	}
}

func rowFromRecord(rec contractx.SupplierRecord) *supplierRecordRow {
	return &supplierRecordRow{
		SupplierID:         rec.SupplierID,
		ReliabilityScore:   rec.ReliabilityScore,
		TotalTransactions:  rec.TotalTransactions,
		FailedTransactions: rec.FailedTransactions,
		LastUpdated:        rec.LastUpdated,
	}
}
