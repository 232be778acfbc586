// Package cache implements the durable fallback store used when the primary
// database rejects a write or read. Entries are partitioned by user id and
// queued for replay against the primary store.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMissingKey indicates an empty namespace or key.
	ErrMissingKey = errors.New("cache: namespace and key are required")
	// ErrNotFound indicates no entry matches the lookup.
	ErrNotFound = errors.New("cache: entry not found")
)

// Entry is one durable key-value row. UserID partitions the namespace so two
// accounts on the same deployment never observe each other's fallback data.
type Entry struct {
	Namespace        string `gorm:"column:namespace;primaryKey;size:64;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Key              string `gorm:"column:key;primaryKey;size:190;not null"`
	ValueJSON        string `gorm:"column:value_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "cache_entries"
}

// PendingWrite records a fallback write awaiting replay to the primary store.
type PendingWrite struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Namespace        string `gorm:"column:namespace;size:64;not null;index:idx_pending_ns_key"`
	UserID           string `gorm:"column:user_id;size:190;not null"`
	Key              string `gorm:"column:key;size:190;not null;index:idx_pending_ns_key"`
	ValueJSON        string `gorm:"column:value_json;type:text;not null"`
	Attempts         int    `gorm:"column:attempts;not null;default:0"`
	EnqueuedAtSeconds int64 `gorm:"column:enqueued_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PendingWrite) TableName() string {
	return "cache_pending_writes"
}

// Store is the durable fallback KV backed by its own sqlite file.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open creates the cache database and its schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache: path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}, &PendingWrite{}); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("fallback cache initialized", zap.String("path", path))
	}
	return NewStore(db), nil
}

// NewStore wraps an already-open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// WithClock overrides the store clock, for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Put upserts an entry under the user's partition.
func (s *Store) Put(ctx context.Context, namespace, userID, key, valueJSON string) error {
	if namespace == "" || key == "" {
		return ErrMissingKey
	}
	entry := Entry{
		Namespace:        namespace,
		UserID:           userID,
		Key:              key,
		ValueJSON:        valueJSON,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

// Get fetches one entry from the user's partition.
func (s *Store) Get(ctx context.Context, namespace, userID, key string) (*Entry, error) {
	if namespace == "" || key == "" {
		return nil, ErrMissingKey
	}
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND user_id = ? AND key = ?", namespace, userID, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Scan returns every entry in a namespace regardless of partition, newest
// first. Resolving a share code has no owning user, so the scan crosses
// partitions by design.
func (s *Store) Scan(ctx context.Context, namespace string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("updated_at_s DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// List returns the user's entries in a namespace, newest first.
func (s *Store) List(ctx context.Context, namespace, userID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND user_id = ?", namespace, userID).
		Order("updated_at_s DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes one entry from the user's partition.
func (s *Store) Delete(ctx context.Context, namespace, userID, key string) error {
	result := s.db.WithContext(ctx).
		Where("namespace = ? AND user_id = ? AND key = ?", namespace, userID, key).
		Delete(&Entry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Enqueue records a fallback write for later replay.
func (s *Store) Enqueue(ctx context.Context, namespace, userID, key, valueJSON string) error {
	pending := PendingWrite{
		Namespace:         namespace,
		UserID:            userID,
		Key:               key,
		ValueJSON:         valueJSON,
		EnqueuedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).Create(&pending).Error
}

// Pending returns queued writes in enqueue order, bounded by limit.
func (s *Store) Pending(ctx context.Context, limit int) ([]PendingWrite, error) {
	if limit <= 0 {
		limit = 100
	}
	var writes []PendingWrite
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Find(&writes).Error
	if err != nil {
		return nil, err
	}
	return writes, nil
}

// Ack removes a replayed write and its cache entry.
func (s *Store) Ack(ctx context.Context, write PendingWrite) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PendingWrite{}, write.ID).Error; err != nil {
			return err
		}
		return tx.
			Where("namespace = ? AND user_id = ? AND key = ?", write.Namespace, write.UserID, write.Key).
			Delete(&Entry{}).Error
	})
}

// Nack bumps the attempt counter on a write that failed to replay.
func (s *Store) Nack(ctx context.Context, write PendingWrite) error {
	return s.db.WithContext(ctx).Model(&PendingWrite{}).
		Where("id = ?", write.ID).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
