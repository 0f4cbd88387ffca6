package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samuelarogbonlo/paraclete/types"
)

// FileStore is a file-based implementation of Store. Suitable for
// single-node deployments. Each thread gets its own directory; each
// checkpoint is one JSON file named by its zero-padded id.
type FileStore struct {
	baseDir string
	// nextID caches the highest assigned id per thread; populated lazily
	// from the directory listing.
	nextID map[string]int64
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a file-based checkpoint store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidInput
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		nextID:  make(map[string]int64),
	}, nil
}

func (s *FileStore) threadDir(threadID string) string {
	return filepath.Join(s.baseDir, threadID)
}

func (s *FileStore) checkpointPath(threadID string, id int64) string {
	return filepath.Join(s.threadDir(threadID), fmt.Sprintf("%012d.json", id))
}

// Save persists a new checkpoint. The write is atomic: data goes to a temp
// file which is renamed into place, so a crash mid-write leaves no partial
// checkpoint behind.
func (s *FileStore) Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*Checkpoint, error) {
	if err := validateSave(threadID, state); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	id, err := s.nextIDLocked(threadID)
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ThreadID:      threadID,
		ID:            id,
		SchemaVersion: types.StateSchemaVersion,
		Timestamp:     time.Now(),
		NextNode:      nextNode,
		State:         state,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(s.threadDir(threadID), 0o755); err != nil {
		return nil, err
	}

	path := s.checkpointPath(threadID, id)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tempPath, path); err != nil {
		return nil, err
	}

	s.nextID[threadID] = id + 1
	return cp, nil
}

// nextIDLocked returns the next checkpoint id, scanning the thread directory
// on first use so ids stay monotonic across restarts.
func (s *FileStore) nextIDLocked(threadID string) (int64, error) {
	if id, ok := s.nextID[threadID]; ok {
		return id, nil
	}
	ids, err := s.listIDs(threadID)
	if err != nil {
		return 0, err
	}
	var next int64 = 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	return next, nil
}

func (s *FileStore) listIDs(threadID string) ([]int64, error) {
	entries, err := os.ReadDir(s.threadDir(threadID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *FileStore) read(threadID string, id int64) (*Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(threadID, id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %d: %w", id, err)
	}
	return &cp, nil
}

// Load returns the checkpoint with the given id.
func (s *FileStore) Load(ctx context.Context, threadID string, id int64) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.read(threadID, id)
}

// Latest returns the most recent checkpoint for the thread.
func (s *FileStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids, err := s.listIDs(threadID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.read(threadID, ids[len(ids)-1])
}

// List returns up to limit metadata entries, newest first.
func (s *FileStore) List(ctx context.Context, threadID string, limit int) ([]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids, err := s.listIDs(threadID)
	if err != nil {
		return nil, err
	}
	metas := make([]Meta, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(metas) >= limit {
			break
		}
		cp, err := s.read(threadID, ids[i])
		if err != nil {
			return nil, err
		}
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
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}
