package authkit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byID   map[string]*RefreshTokenRecord
	byHash map[string]string
}

// NewMemoryRefreshTokenStore creates a new in-memory token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		byID:   make(map[string]*RefreshTokenRecord),
		byHash: make(map[string]string),
	}
}

// Insert stores a new record.
func (store *MemoryRefreshTokenStore) Insert(ctx context.Context, record RefreshTokenRecord) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byID[record.ID]; exists {
		return fmt.Errorf("refresh_store.insert.memory: duplicate id %s", record.ID)
	}
	if _, exists := store.byHash[record.TokenHash]; exists {
		return fmt.Errorf("refresh_store.insert.memory: duplicate token hash")
	}
	stored := record
	stored.RevokedAt = nil
	store.byID[record.ID] = &stored
	store.byHash[record.TokenHash] = record.ID
	return nil
}

// Redeem checks and revokes under one lock, which makes it the compare-and-set for this store.
func (store *MemoryRefreshTokenStore) Redeem(ctx context.Context, tokenHash string, now time.Time) (RefreshTokenRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, ok := store.byHash[tokenHash]
	if !ok {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.memory: %w", ErrInvalidRefreshToken)
	}
	record := store.byID[tokenID]
	if record == nil || !record.Usable(now) {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.memory: %w", ErrInvalidRefreshToken)
	}
	revokedAt := now
	record.RevokedAt = &revokedAt
	return *record, nil
}

// PurgeExpired removes records whose expiry is before the cutoff.
func (store *MemoryRefreshTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var removed int64
	for tokenID, record := range store.byID {
		if record.ExpiresAt.Before(before) {
			delete(store.byHash, record.TokenHash)
			delete(store.byID, tokenID)
			removed++
		}
	}
	return removed, nil
}
