package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

type workflowRow struct {
	bun.BaseModel `bun:"table:workflows"`

	ID         string    `bun:"id,pk"`
	Step       string    `bun:"step,notnull"`
	ApprovalID string    `bun:"approval_id,nullzero"`
	Pending    bool      `bun:"pending,notnull"`
	Payload    string    `bun:"payload,notnull"`
	Version    int       `bun:"version,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

var _ Store = (*BunStore)(nil)

// BunStore persists workflows in a SQL table. Saves use optimistic locking
// on the version column.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(ctx context.Context, db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("state: db is required")
	}
	s := &BunStore{db: db}
	if _, err := db.NewCreateTable().Model((*workflowRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("state: create table: %w", err)
	}
	for name, col := range map[string]string{
		"workflows_approval_idx": "approval_id",
		"workflows_pending_idx":  "pending",
	} {
		_, err := db.NewCreateIndex().Model((*workflowRow)(nil)).Index(name).Column(col).IfNotExists().Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("state: create index %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *BunStore) Load(ctx context.Context, workflowID string) (*Workflow, error) {
	row := new(workflowRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", workflowID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contractx.ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("state: load %s: %w", workflowID, err)
	}
	return decodeWorkflow([]byte(row.Payload))
}

func (s *BunStore) Save(ctx context.Context, wf *Workflow) error {
	if err := prepareSave(wf); err != nil {
		return err
	}

	expected := wf.Version
	wf.Version++
	payload, err := json.Marshal(wf)
	if err != nil {
		wf.Version = expected
		return fmt.Errorf("marshal workflow: %w", err)
	}

	row := &workflowRow{
		ID:        wf.ID,
		Step:      string(wf.Step),
		Pending:   wf.PendingApproval(),
		Payload:   string(payload),
		Version:   wf.Version,
		CreatedAt: wf.CreatedAt.UTC(),
		UpdatedAt: wf.UpdatedAt.UTC(),
	}
	if wf.Approval != nil {
		row.ApprovalID = wf.Approval.ID
	}

	if expected == 0 {
		if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
			wf.Version = expected
			return fmt.Errorf("state: insert %s: %w", wf.ID, err)
		}
		return nil
	}

	res, err := s.db.NewUpdate().
		Model(row).
		Column("step", "approval_id", "pending", "payload", "version", "updated_at").
		Where("id = ?", wf.ID).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		wf.Version = expected
		return fmt.Errorf("state: update %s: %w", wf.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		wf.Version = expected
		return fmt.Errorf("%w: %s at version %d", ErrStaleWorkflow, wf.ID, expected)
	}
	return nil
}

func (s *BunStore) Delete(ctx context.Context, workflowID string) error {
	_, err := s.db.NewDelete().Model((*workflowRow)(nil)).Where("id = ?", workflowID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("state: delete %s: %w", workflowID, err)
	}
	return nil
}

func (s *BunStore) FindByApproval(ctx context.Context, approvalID string) (*Workflow, error) {
	row := new(workflowRow)
	err := s.db.NewSelect().Model(row).Where("approval_id = ?", approvalID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contractx.ErrApprovalNotFound, approvalID)
	}
	if err != nil {
		return nil, fmt.Errorf("state: find approval %s: %w", approvalID, err)
	}
	return decodeWorkflow([]byte(row.Payload))
}

func (s *BunStore) ListPending(ctx context.Context) ([]*Workflow, error) {
	var rows []workflowRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("pending = ?", true).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("state: list pending: %w", err)
	}
	out := make([]*Workflow, 0, len(rows))
	for _, r := range rows {
		wf, err := decodeWorkflow([]byte(r.Payload))
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}
