package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/samuelarogbonlo/paraclete/types"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and testing; checkpoints do not survive a restart.
type MemoryStore struct {
	threads map[string][]*Checkpoint
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]*Checkpoint),
	}
}

// Save persists a new checkpoint with the next id for the thread.
func (s *MemoryStore) Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*Checkpoint, error) {
	if err := validateSave(threadID, state); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	chain := s.threads[threadID]
	var id int64 = 1
	if n := len(chain); n > 0 {
		id = chain[n-1].ID + 1
	}

	// Snapshot through JSON so later state mutations cannot reach into the
	// stored checkpoint.
	snapshot, err := roundTripState(state)
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ThreadID:      threadID,
		ID:            id,
		SchemaVersion: types.StateSchemaVersion,
		Timestamp:     time.Now(),
		NextNode:      nextNode,
		State:         snapshot,
	}
	s.threads[threadID] = append(chain, cp)
	return cp, nil
}

// Load returns the checkpoint with the given id.
func (s *MemoryStore) Load(ctx context.Context, threadID string, id int64) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	for _, cp := range s.threads[threadID] {
		if cp.ID == id {
			return cloneCheckpoint(cp)
		}
	}
	return nil, ErrNotFound
}

// Latest returns the most recent checkpoint for the thread.
func (s *MemoryStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	chain := s.threads[threadID]
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return cloneCheckpoint(chain[len(chain)-1])
}

// List returns up to limit metadata entries, newest first.
func (s *MemoryStore) List(ctx context.Context, threadID string, limit int) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	chain := s.threads[threadID]
	metas := make([]Meta, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if limit > 0 && len(metas) >= limit {
			break
		}
		cp := chain[i]
		metas = append(metas, Meta{
			ThreadID:  cp.ThreadID,
			ID:        cp.ID,
			Timestamp: cp.Timestamp,
			NextNode:  cp.NextNode,
		})
	}
	return metas, nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func roundTripState(state *types.WorkflowState) (*types.WorkflowState, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var out types.WorkflowState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func cloneCheckpoint(cp *Checkpoint) (*Checkpoint, error) {
	state, err := roundTripState(cp.State)
	if err != nil {
		return nil, err
	}
	out := *cp
	out.State = state
	return &out, nil
}
