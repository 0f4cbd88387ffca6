// Package checkpoint provides durable, per-thread snapshots of workflow
// state. A checkpoint is written after every node transition; resuming an
// instance means loading its latest checkpoint and re-entering the engine at
// the recorded next node.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - File: for single-node deployments
//   - SQLite: durable single-node storage
//   - Redis: for distributed deployments
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/samuelarogbonlo/paraclete/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("checkpoint not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeRedis  StoreType = "redis"
)

// Checkpoint is one durable snapshot. IDs are assigned by the store and are
// strictly increasing per thread; the engine treats checkpoints as opaque,
// totally-ordered-by-time snapshots and never diffs or merges them.
type Checkpoint struct {
	ThreadID      string               `json:"thread_id"`
	ID            int64                `json:"checkpoint_id"`
	SchemaVersion int                  `json:"schema_version"`
	Timestamp     time.Time            `json:"timestamp"`
	NextNode      string               `json:"next_node"`
	State         *types.WorkflowState `json:"state"`
}

// Meta is checkpoint metadata without the state snapshot, for listings.
type Meta struct {
	ThreadID  string    `json:"thread_id"`
	ID        int64     `json:"checkpoint_id"`
	Timestamp time.Time `json:"timestamp"`
	NextNode  string    `json:"next_node"`
}

// Store is the persistence contract the engine consumes. Save must be
// durable before it returns: a crash between node completion and the Save
// call must look, on recovery, like the node never ran.
type Store interface {
	// Save persists a new checkpoint and returns it with its assigned id.
	Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*Checkpoint, error)

	// Load returns the checkpoint with the given id, or ErrNotFound.
	Load(ctx context.Context, threadID string, id int64) (*Checkpoint, error)

	// Latest returns the most recent checkpoint for a thread, or ErrNotFound
	// when the thread has never been checkpointed.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns up to limit checkpoint metadata entries, newest first.
	List(ctx context.Context, threadID string, limit int) ([]Meta, error)

	// Close closes the store and releases resources.
	Close() error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// Config is the configuration for all store implementations.
type Config struct {
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Path is the database file for the sqlite backend.
	Path string `json:"path" yaml:"path"`

	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Type:    StoreTypeMemory,
		BaseDir: "./data/checkpoints",
		Path:    "./data/paraclete.db",
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "paraclete:",
		},
	}
}

func validateSave(threadID string, state *types.WorkflowState) error {
	if threadID == "" || state == nil {
		return ErrInvalidInput
	}
	return nil
}
