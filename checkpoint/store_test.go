package checkpoint

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/paraclete/types"
)

// newStores returns one constructor per backend so every implementation runs
// the same conformance suite.
func newStores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			store, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return store
		},
		"sqlite": func(t *testing.T) Store {
			store, err := NewSQLiteStore(":memory:")
			require.NoError(t, err)
			return store
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisStoreFromClient(client, "test:")
		},
	}
}

func testState(threadID string) *types.WorkflowState {
	return types.NewWorkflowState(threadID, "sess-1", "user-1", []types.Message{
		types.NewUserMessage("build a thing"),
	})
}

func TestStore_SaveAssignsIncreasingIDs(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			var last int64
			for i := 0; i < 5; i++ {
				cp, err := store.Save(ctx, "thread-1", testState("thread-1"), "planner")
				require.NoError(t, err)
				assert.Greater(t, cp.ID, last, "checkpoint ids must be strictly increasing")
				last = cp.ID
			}

			// A different thread gets its own sequence.
			cp, err := store.Save(ctx, "thread-2", testState("thread-2"), "planner")
			require.NoError(t, err)
			assert.Equal(t, int64(1), cp.ID)
		})
	}
}

func TestStore_LatestReturnsHighest(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			for i, node := range []string{"planner", "coder", "reviewer"} {
				state := testState("thread-1")
				state.RetryCount = i
				_, err := store.Save(ctx, "thread-1", state, node)
				require.NoError(t, err)
			}

			latest, err := store.Latest(ctx, "thread-1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), latest.ID)
			assert.Equal(t, "reviewer", latest.NextNode)
			assert.Equal(t, 2, latest.State.RetryCount)
		})
	}
}

func TestStore_LoadSpecificCheckpoint(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			_, err := store.Save(ctx, "thread-1", testState("thread-1"), "planner")
			require.NoError(t, err)
			second, err := store.Save(ctx, "thread-1", testState("thread-1"), "coder")
			require.NoError(t, err)

			cp, err := store.Load(ctx, "thread-1", second.ID)
			require.NoError(t, err)
			assert.Equal(t, "coder", cp.NextNode)
			assert.Equal(t, types.StateSchemaVersion, cp.SchemaVersion)
			assert.Equal(t, "thread-1", cp.State.ThreadID)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			_, err := store.Latest(ctx, "missing-thread")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.Load(ctx, "missing-thread", 1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, err := store.Save(ctx, "thread-1", testState("thread-1"), fmt.Sprintf("node-%d", i))
				require.NoError(t, err)
			}

			metas, err := store.List(ctx, "thread-1", 3)
			require.NoError(t, err)
			require.Len(t, metas, 3)
			assert.Equal(t, int64(5), metas[0].ID)
			assert.Equal(t, int64(4), metas[1].ID)
			assert.Equal(t, int64(3), metas[2].ID)

			all, err := store.List(ctx, "thread-1", 0)
			require.NoError(t, err)
			assert.Len(t, all, 5)
		})
	}
}

func TestStore_InvalidInput(t *testing.T) {
	for name, newStore := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			_, err := store.Save(ctx, "", testState("t"), "planner")
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = store.Save(ctx, "thread-1", nil, "planner")
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	state := testState("thread-1")
	_, err := store.Save(ctx, "thread-1", state, "planner")
	require.NoError(t, err)

	// Mutating the live state after Save must not change the stored snapshot.
	state.RetryCount = 99
	state.Messages = append(state.Messages, types.NewAssistantMessage("mutated"))

	latest, err := store.Latest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 0, latest.State.RetryCount)
	assert.Len(t, latest.State.Messages, 1)
}

func TestFileStore_SequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.Save(ctx, "thread-1", testState("thread-1"), "planner")
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	cp, err := reopened.Save(ctx, "thread-1", testState("thread-1"), "coder")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cp.ID, "ids must stay monotonic across restarts")

	latest, err := reopened.Latest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest.ID)
}

func TestNewStore_Factory(t *testing.T) {
	store, err := NewStore(Config{Type: StoreTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore(Config{Type: StoreTypeFile, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = NewStore(Config{Type: "bogus"})
	assert.Error(t, err)
}
