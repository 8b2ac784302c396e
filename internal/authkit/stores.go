package authkit

import (
	"context"
	"time"
)

// UserStore persists users and developer profiles.
// Lookups report absence through the bool result, not through an error.
type UserStore interface {
	// CreateUser inserts user; a duplicate email fails with ErrConflict.
	CreateUser(ctx context.Context, user User) error
	FindUserByEmail(ctx context.Context, email string) (User, bool, error)
	FindUserByID(ctx context.Context, userID string) (User, bool, error)
	// SetUserRole fails with ErrNotFound when the user is missing.
	SetUserRole(ctx context.Context, userID string, role Role) error
	// EnsureDeveloperProfile creates the profile once and returns the stored one afterwards.
	EnsureDeveloperProfile(ctx context.Context, profile DeveloperProfile) (DeveloperProfile, error)
}

// RefreshTokenStore persists refresh token records.
type RefreshTokenStore interface {
	Insert(ctx context.Context, record RefreshTokenRecord) error
	// Redeem marks the record with tokenHash as revoked at now, but only if it is
	// unrevoked and unexpired, in one conditional write. Any other outcome is ErrInvalidRefreshToken.
	Redeem(ctx context.Context, tokenHash string, now time.Time) (RefreshTokenRecord, error)
	// PurgeExpired deletes records that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
