package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anvay/backend-dinetab/internal/tab"
)

const (
	batchKeyPrefix  = "session:batch:"
	activeTabPrefix = "session:table:active:"
)

// ErrNotFound is returned when no session entry exists for the given key.
var ErrNotFound = errors.New("session: not found")

// Store persists batch snapshots and the active tab selection per table in
// Redis so a device can recover its session after a reload.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

// NewStore builds a Store with the provided TTL applied to every entry.
func NewStore(r *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{R: r, TTL: ttl}
}

// SaveBatch stores the batch snapshot keyed by its ID.
func (s *Store) SaveBatch(ctx context.Context, batch tab.OrderBatch) error {
	if s == nil || s.R == nil {
		return nil
	}
	if batch.ID == "" {
		return errors.New("session: batch id required")
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, batchKeyPrefix+batch.ID, payload, s.TTL).Err()
}

// Batch loads a previously saved batch snapshot.
func (s *Store) Batch(ctx context.Context, batchID string) (tab.OrderBatch, error) {
	var out tab.OrderBatch
	if s == nil || s.R == nil {
		return out, ErrNotFound
	}
	raw, err := s.R.Get(ctx, batchKeyPrefix+batchID).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// ClearBatch removes the batch snapshot. Missing keys are not an error.
func (s *Store) ClearBatch(ctx context.Context, batchID string) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, batchKeyPrefix+batchID).Err()
}

// SaveActiveTab records which tab a table's device is currently operating on.
func (s *Store) SaveActiveTab(ctx context.Context, tableID, tabID string) error {
	if s == nil || s.R == nil {
		return nil
	}
	if tableID == "" || tabID == "" {
		return errors.New("session: table id and tab id required")
	}
	return s.R.Set(ctx, activeTabPrefix+tableID, tabID, s.TTL).Err()
}

// ActiveTab returns the tab recorded for the table, or ErrNotFound.
func (s *Store) ActiveTab(ctx context.Context, tableID string) (string, error) {
	if s == nil || s.R == nil {
		return "", ErrNotFound
	}
	tabID, err := s.R.Get(ctx, activeTabPrefix+tableID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return tabID, nil
}

// ClearActiveTab removes the active tab marker for the table.
func (s *Store) ClearActiveTab(ctx context.Context, tableID string) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, activeTabPrefix+tableID).Err()
}
