package authkit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RefreshTokenLedger records issued refresh tokens and redeems each of them at most once.
type RefreshTokenLedger struct {
	store RefreshTokenStore
	clock Clock
}

// NewRefreshTokenLedger wraps a store; a nil clock uses the system clock.
func NewRefreshTokenLedger(store RefreshTokenStore, clock Clock) *RefreshTokenLedger {
	return &RefreshTokenLedger{store: store, clock: clockOrSystem(clock)}
}

// Create persists hash(rawToken) for userID, expiring lifetime from now.
func (ledger *RefreshTokenLedger) Create(ctx context.Context, userID string, rawToken string, lifetime time.Duration, previousTokenID string) (RefreshTokenRecord, error) {
	if strings.TrimSpace(rawToken) == "" {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_ledger.create: empty token")
	}
	if lifetime <= 0 {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_ledger.create: lifetime must be positive")
	}
	// Postgres timestamptz keeps microseconds; records stay identical across stores.
	issuedAt := ledger.clock.Now().UTC().Truncate(time.Microsecond)
	record := RefreshTokenRecord{
		ID:              newRecordID(),
		UserID:          userID,
		TokenHash:       HashRefreshToken(rawToken),
		PreviousTokenID: previousTokenID,
		IssuedAt:        issuedAt,
		ExpiresAt:       issuedAt.Add(lifetime),
	}
	if err := ledger.store.Insert(ctx, record); err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_ledger.create: %w", err)
	}
	return record, nil
}

// Redeem consumes rawToken. Unknown, expired, and already redeemed tokens all fail with ErrInvalidRefreshToken.
func (ledger *RefreshTokenLedger) Redeem(ctx context.Context, rawToken string) (RefreshTokenRecord, error) {
	if strings.TrimSpace(rawToken) == "" {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_ledger.redeem: %w", ErrInvalidRefreshToken)
	}
	record, err := ledger.store.Redeem(ctx, HashRefreshToken(rawToken), ledger.clock.Now().UTC())
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_ledger.redeem: %w", err)
	}
	return record, nil
}

// PurgeExpired deletes records that expired more than retention ago.
func (ledger *RefreshTokenLedger) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := ledger.clock.Now().UTC().Add(-retention)
	removed, err := ledger.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("refresh_ledger.purge: %w", err)
	}
	return removed, nil
}
