package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/samuelarogbonlo/paraclete/types"
)

// checkpointRow is the gorm model backing SQLiteStore. The state snapshot is
// stored as a JSON blob so schema evolution of WorkflowState never needs a
// table migration.
type checkpointRow struct {
	ThreadID      string    `gorm:"primaryKey;size:128"`
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	SchemaVersion int       `gorm:"not null"`
	Timestamp     time.Time `gorm:"not null;index"`
	NextNode      string    `gorm:"size:64"`
	State         []byte    `gorm:"not null"`
}

func (checkpointRow) TableName() string { return "checkpoints" }

// SQLiteStore is a SQLite-backed implementation of Store. Durable
// single-node storage with no external service dependency.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// checkpoint table. Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrInvalidInput
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&checkpointRow{}); err != nil {
		return nil, fmt.Errorf("migrate checkpoint table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save persists a new checkpoint. Id allocation and insert run in one
// transaction so concurrent saves for the same thread cannot collide.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*Checkpoint, error) {
	if err := validateSave(threadID, state); err != nil {
		return nil, err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	row := checkpointRow{
		ThreadID:      threadID,
		SchemaVersion: types.StateSchemaVersion,
		Timestamp:     time.Now(),
		NextNode:      nextNode,
		State:         data,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxID int64
		if err := tx.Model(&checkpointRow{}).
			Where("thread_id = ?", threadID).
			Select("COALESCE(MAX(id), 0)").
			Scan(&maxID).Error; err != nil {
			return err
		}
		row.ID = maxID + 1
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		ThreadID:      row.ThreadID,
		ID:            row.ID,
		SchemaVersion: row.SchemaVersion,
		Timestamp:     row.Timestamp,
		NextNode:      row.NextNode,
		State:         state,
	}, nil
}

func rowToCheckpoint(row *checkpointRow) (*Checkpoint, error) {
	var state types.WorkflowState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %d: %w", row.ID, err)
	}
	return &Checkpoint{
		ThreadID:      row.ThreadID,
		ID:            row.ID,
		SchemaVersion: row.SchemaVersion,
		Timestamp:     row.Timestamp,
		NextNode:      row.NextNode,
		State:         &state,
	}, nil
}

// Load returns the checkpoint with the given id.
func (s *SQLiteStore) Load(ctx context.Context, threadID string, id int64) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND id = ?", threadID, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToCheckpoint(&row)
}

// Latest returns the most recent checkpoint for the thread.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToCheckpoint(&row)
}

// List returns up to limit metadata entries, newest first.
func (s *SQLiteStore) List(ctx context.Context, threadID string, limit int) ([]Meta, error) {
	q := s.db.WithContext(ctx).
		Model(&checkpointRow{}).
		Where("thread_id = ?", threadID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []checkpointRow
	if err := q.Select("thread_id", "id", "timestamp", "next_node").Find(&rows).Error; err != nil {
		return nil, err
	}
	metas := make([]Meta, len(rows))
	for i, row := range rows {
		metas[i] = Meta{
			ThreadID:  row.ThreadID,
			ID:        row.ID,
			Timestamp: row.Timestamp,
			NextNode:  row.NextNode,
		}
	}
	return metas, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the store is healthy.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
