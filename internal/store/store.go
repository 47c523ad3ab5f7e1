// Package store persists scraper state in SQLite: the set of already
// processed posts and per-channel progress, so repeated and resumed runs do
// not reprocess or redeliver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProcessedRecord marks one logical post as handled. Rows are inserted only
// after the record was delivered, saved, or queued.
type ProcessedRecord struct {
	UniqueID    string `gorm:"primaryKey"`
	ChannelID   int64  `gorm:"index"`
	MessageID   int
	ProcessedAt time.Time
}

// ChannelProgress tracks the newest message id seen per channel so live and
// hybrid runs resume where they left off.
type ChannelProgress struct {
	ChannelID     int64 `gorm:"primaryKey"`
	LastMessageID int
	UpdatedAt     time.Time
}

type Store struct {
	db *gorm.DB
}

// Open opens or creates the state database at path and migrates the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if err := db.AutoMigrate(&ProcessedRecord{}, &ChannelProgress{}); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}

	return &Store{db: db}, nil
}

// IsProcessed reports whether the unique id was already handled.
func (s *Store) IsProcessed(ctx context.Context, uniqueID string) (bool, error) {
	err := s.db.WithContext(ctx).
		Select("unique_id").
		First(&ProcessedRecord{}, "unique_id = ?", uniqueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup processed record: %w", err)
	}

	return true, nil
}

// MarkProcessed records a handled post. Idempotent: re-marking an existing
// id is not an error.
func (s *Store) MarkProcessed(ctx context.Context, uniqueID string, channelID int64, messageID int) error {
	rec := ProcessedRecord{
		UniqueID:    uniqueID,
		ChannelID:   channelID,
		MessageID:   messageID,
		ProcessedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).
		Where(ProcessedRecord{UniqueID: uniqueID}).
		FirstOrCreate(&rec).Error
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	return nil
}

// ProcessedIDs returns every processed unique id, used to warm the in-memory
// dedup cache at startup.
func (s *Store) ProcessedIDs(ctx context.Context) ([]string, error) {
	var ids []string

	err := s.db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Pluck("unique_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}

	return ids, nil
}

// Progress returns the last seen message id for a channel, zero if the
// channel was never scraped.
func (s *Store) Progress(ctx context.Context, channelID int64) (int, error) {
	var p ChannelProgress

	err := s.db.WithContext(ctx).First(&p, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load channel progress: %w", err)
	}

	return p.LastMessageID, nil
}

// SetProgress advances the last seen message id for a channel. Ids only move
// forward; a smaller id is ignored.
func (s *Store) SetProgress(ctx context.Context, channelID int64, lastMessageID int) error {
	current, err := s.Progress(ctx, channelID)
	if err != nil {
		return err
	}

	if lastMessageID <= current {
		return nil
	}

	p := ChannelProgress{
		ChannelID:     channelID,
		LastMessageID: lastMessageID,
		UpdatedAt:     time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Save(&p).Error
	if err != nil {
		return fmt.Errorf("save channel progress: %w", err)
	}

	return nil
}

// Ping checks the underlying connection, used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	return db.Close()
}
