package workflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Store persists workflow definitions. The engine core consumes only the two
// read operations; Upsert and Delete serve the editing surface.
type Store interface {
	// Get retrieves a workflow by id. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Workflow, error)

	// ListActive returns all enabled workflows.
	ListActive(ctx context.Context) ([]Workflow, error)

	// Upsert persists a workflow, bumping its version on every write.
	Upsert(ctx context.Context, wf *Workflow) error

	// Delete removes a workflow by id, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore is an in-memory Store for embedding and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
}

// NewMemoryStore creates an empty in-memory workflow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]Workflow)}
}

// Get retrieves a workflow by id. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	return &wf, nil
}

// ListActive returns all enabled workflows.
func (s *MemoryStore) ListActive(_ context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := []Workflow{}
	for _, wf := range s.workflows {
		if wf.Enabled {
			active = append(active, wf)
		}
	}
	return active, nil
}

// Upsert persists the workflow, incrementing Version past the stored one and
// refreshing UpdatedAt. The passed workflow is updated in place so callers
// observe the bumped version.
func (s *MemoryStore) Upsert(_ context.Context, wf *Workflow) error {
	if wf.ID == "" {
		return errors.New("workflow id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.workflows[wf.ID]; ok {
		wf.Version = existing.Version + 1
		wf.CreatedAt = existing.CreatedAt
	} else {
		wf.Version = 1
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	s.workflows[wf.ID] = *wf
	return nil
}

// Delete removes a workflow by id, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return false, nil
	}
	delete(s.workflows, id)
	return true, nil
}
