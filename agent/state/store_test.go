package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	dbx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/db"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), "file:"+filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bunStore, err := NewBunStore(context.Background(), db)
	require.NoError(t, err)

	upstash, _ := newTestUpstash(t)

	return map[string]Store{
		"memory":  NewMemoryStore(),
		"bun":     bunStore,
		"upstash": upstash,
	}
}

func suspended(id, approvalID string, created time.Time) *Workflow {
	wf := NewWorkflow(id, contractx.PurchaseRequest{PartID: "Logic-Core-CPU", Quantity: 50}, created)
	for _, step := range []Step{StepCheckMemory, StepRequestQuote, StepEvaluate, StepAwaitApproval} {
		_ = wf.Transition(step, "", created)
	}
	wf.Approval = &contractx.ApprovalRequest{
		ID:          approvalID,
		WorkflowID:  id,
		Reason:      "total above threshold",
		RequestedAt: created,
		Resolution:  contractx.ResolutionPending,
	}
	return wf
}

func TestStoreRoundTripAndIndexes(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

			first := suspended("wf-a", "apr-a", base)
			second := suspended("wf-b", "apr-b", base.Add(time.Minute))
			require.NoError(t, store.Save(ctx, second))
			require.NoError(t, store.Save(ctx, first))
			require.Equal(t, 1, first.Version)

			loaded, err := store.Load(ctx, "wf-a")
			require.NoError(t, err)
			require.Equal(t, StepAwaitApproval, loaded.Step)
			require.Equal(t, "apr-a", loaded.Approval.ID)
			require.Len(t, loaded.History, 4)

			byApproval, err := store.FindByApproval(ctx, "apr-b")
			require.NoError(t, err)
			require.Equal(t, "wf-b", byApproval.ID)

			pending, err := store.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			require.Equal(t, "wf-a", pending[0].ID)

			loaded.Approval.Resolution = contractx.ResolutionRejected
			require.NoError(t, loaded.Fail(contractx.CodeApprovalDenied, "", base))
			require.NoError(t, store.Save(ctx, loaded))

			pending, err = store.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			require.Equal(t, "wf-b", pending[0].ID)

			_, err = store.Load(ctx, "missing")
			require.ErrorIs(t, err, contractx.ErrWorkflowNotFound)
			_, err = store.FindByApproval(ctx, "missing")
			require.ErrorIs(t, err, contractx.ErrApprovalNotFound)

			require.NoError(t, store.Delete(ctx, "wf-b"))
			_, err = store.Load(ctx, "wf-b")
			require.ErrorIs(t, err, contractx.ErrWorkflowNotFound)
		})
	}
}

func TestStoreRejectsStaleSave(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wf := suspended("wf-stale", "apr-stale", time.Now())
			require.NoError(t, store.Save(ctx, wf))

			a, err := store.Load(ctx, "wf-stale")
			require.NoError(t, err)
			b, err := store.Load(ctx, "wf-stale")
			require.NoError(t, err)

			a.Approval.Resolution = contractx.ResolutionApproved
			require.NoError(t, store.Save(ctx, a))

			b.Approval.Resolution = contractx.ResolutionRejected
			err = store.Save(ctx, b)
			require.ErrorIs(t, err, ErrStaleWorkflow)

			current, err := store.Load(ctx, "wf-stale")
			require.NoError(t, err)
			require.Equal(t, contractx.ResolutionApproved, current.Approval.Resolution)
		})
	}
}

func TestBunStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := "file:" + filepath.Join(t.TempDir(), "state.db")

	db, err := dbx.OpenSQLite(ctx, path)
	require.NoError(t, err)
	store, err := NewBunStore(ctx, db)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, suspended("wf-r", "apr-r", time.Now())))
	require.NoError(t, db.Close())

	db, err = dbx.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err = NewBunStore(ctx, db)
	require.NoError(t, err)

	wf, err := store.FindByApproval(ctx, "apr-r")
	require.NoError(t, err)
	require.True(t, wf.PendingApproval())
}
