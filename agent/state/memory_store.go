package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps workflows as encoded snapshots so callers never share
// pointers with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string][]byte
	approvals map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string][]byte),
		approvals: make(map[string]string),
	}
}

func (s *MemoryStore) Load(_ context.Context, workflowID string) (*Workflow, error) {
	s.mu.RLock()
	raw, ok := s.workflows[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrWorkflowNotFound, workflowID)
	}
	return decodeWorkflow(raw)
}

func (s *MemoryStore) Save(_ context.Context, wf *Workflow) error {
	if err := prepareSave(wf); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := s.workflows[wf.ID]; ok {
		var stored struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode stored workflow: %w", err)
		}
		if stored.Version != wf.Version {
			return fmt.Errorf("%w: %s has version %d, caller holds %d", ErrStaleWorkflow, wf.ID, stored.Version, wf.Version)
		}
	} else if wf.Version != 0 {
		return fmt.Errorf("%w: %s was deleted", ErrStaleWorkflow, wf.ID)
	}

	wf.Version++
	raw, err := json.Marshal(wf)
	if err != nil {
		wf.Version--
		return fmt.Errorf("marshal workflow: %w", err)
	}
	s.workflows[wf.ID] = raw
	if wf.Approval != nil {
		s.approvals[wf.Approval.ID] = wf.ID
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, workflowID)
	for approvalID, id := range s.approvals {
		if id == workflowID {
			delete(s.approvals, approvalID)
		}
	}
	return nil
}

func (s *MemoryStore) FindByApproval(ctx context.Context, approvalID string) (*Workflow, error) {
	s.mu.RLock()
	workflowID, ok := s.approvals[approvalID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrApprovalNotFound, approvalID)
	}
	return s.Load(ctx, workflowID)
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Workflow
	for _, raw := range s.workflows {
		wf, err := decodeWorkflow(raw)
		if err != nil {
			return nil, err
		}
		if wf.PendingApproval() {
			out = append(out, wf)
		}
	}
	sortByCreated(out)
	return out, nil
}

func prepareSave(wf *Workflow) error {
	if wf == nil {
		return ErrNilWorkflow
	}
	if strings.TrimSpace(wf.ID) == "" {
		return ErrInvalidWorkflowID
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = time.Now().UTC()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = wf.UpdatedAt
	}
	return wf.Validate()
}

func decodeWorkflow(raw []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow loaded from store: %w", err)
	}
	return &wf, nil
}

func sortByCreated(wfs []*Workflow) {
	sort.SliceStable(wfs, func(i, j int) bool {
		if wfs[i].CreatedAt.Equal(wfs[j].CreatedAt) {
			return wfs[i].ID < wfs[j].ID
		}
		return wfs[i].CreatedAt.Before(wfs[j].CreatedAt)
	})
}
