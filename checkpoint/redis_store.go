package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/samuelarogbonlo/paraclete/types"
)

// RedisStore is a Redis-based implementation of Store. Suitable for
// distributed deployments. Checkpoint data lives under string keys with a
// sorted-set index per thread; ids come from a per-thread INCR counter so
// they stay strictly increasing even across processes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "paraclete:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "ckpt:",
	}, nil
}

// NewRedisStoreFromClient wraps an existing client; used in tests.
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "paraclete:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "ckpt:"}
}

func (s *RedisStore) seqKey(threadID string) string {
	return s.keyPrefix + "seq:" + threadID
}

func (s *RedisStore) dataKey(threadID string, id int64) string {
	return s.keyPrefix + "data:" + threadID + ":" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) indexKey(threadID string) string {
	return s.keyPrefix + "index:" + threadID
}

// Save persists a new checkpoint.
func (s *RedisStore) Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*Checkpoint, error) {
	if err := validateSave(threadID, state); err != nil {
		return nil, err
	}

	id, err := s.client.Incr(ctx, s.seqKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate checkpoint id: %w", err)
	}

	cp := &Checkpoint{
		ThreadID:      threadID,
		ID:            id,
		SchemaVersion: types.StateSchemaVersion,
		Timestamp:     time.Now(),
		NextNode:      nextNode,
		State:         state,
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(threadID, id), data, 0)
	pipe.ZAdd(ctx, s.indexKey(threadID), redis.Z{Score: float64(id), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return cp, nil
}

// Load returns the checkpoint with the given id.
func (s *RedisStore) Load(ctx context.Context, threadID string, id int64) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.dataKey(threadID, id)).Bytes()
	if err == redis.Nil {
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

// Latest returns the most recent checkpoint for the thread.
func (s *RedisStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}
	id, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint index: %w", err)
	}
	return s.Load(ctx, threadID, id)
}

// List returns up to limit metadata entries, newest first.
func (s *RedisStore) List(ctx context.Context, threadID string, limit int) ([]Meta, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.client.ZRevRange(ctx, s.indexKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	metas := make([]Meta, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		cp, err := s.Load(ctx, threadID, id)
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
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
