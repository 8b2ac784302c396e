package authkitpg

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/webharbour/internal/authkit"
)

// Set APP_TEST_DATABASE_URL to a disposable Postgres database to run these.
const contractDatabaseEnv = "APP_TEST_DATABASE_URL"

func openContractStores(t *testing.T) *Stores {
	t.Helper()
	databaseURL := os.Getenv(contractDatabaseEnv)
	if databaseURL == "" {
		t.Skipf("%s not set", contractDatabaseEnv)
	}
	stores, err := OpenStores(t.Context(), databaseURL)
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(stores.Close)
	return stores
}

func TestPostgresContractRefreshTokens(t *testing.T) {
	stores := openContractStores(t)
	ctx := context.Background()
	issuedAt := time.Unix(1700000000, 700000000).UTC()
	record := authkit.RefreshTokenRecord{
		ID:        uuid.NewString(),
		UserID:    "user-" + uuid.NewString(),
		TokenHash: authkit.HashRefreshToken(uuid.NewString()),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(time.Hour),
	}
	if err := stores.RefreshTokens.Insert(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := stores.RefreshTokens.Insert(ctx, record); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
	if _, err := stores.RefreshTokens.Redeem(ctx, record.TokenHash, record.ExpiresAt); !errors.Is(err, authkit.ErrInvalidRefreshToken) {
		t.Fatalf("expected token to be unusable at expiry, got %v", err)
	}

	const contenders = 6
	var successes atomic.Int32
	var waitGroup sync.WaitGroup
	for index := 0; index < contenders; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			redeemed, err := stores.RefreshTokens.Redeem(ctx, record.TokenHash, record.ExpiresAt.Add(-300*time.Millisecond))
			if err == nil {
				successes.Add(1)
				if redeemed.ID != record.ID || !redeemed.IssuedAt.Equal(issuedAt) {
					t.Errorf("unexpected redeemed record %+v", redeemed)
				}
			}
		}()
	}
	waitGroup.Wait()
	if successes.Load() != 1 {
		t.Fatalf("expected exactly one redeem, got %d", successes.Load())
	}
}

func TestPostgresContractUsers(t *testing.T) {
	stores := openContractStores(t)
	ctx := context.Background()
	user := authkit.User{
		ID:           uuid.NewString(),
		Name:         "Ada",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         authkit.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := stores.Users.CreateUser(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	duplicate := user
	duplicate.ID = uuid.NewString()
	if err := stores.Users.CreateUser(ctx, duplicate); !errors.Is(err, authkit.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	first, err := stores.Users.EnsureDeveloperProfile(ctx, authkit.DeveloperProfile{ID: uuid.NewString(), UserID: user.ID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	second, err := stores.Users.EnsureDeveloperProfile(ctx, authkit.DeveloperProfile{ID: uuid.NewString(), UserID: user.ID, CreatedAt: time.Now().UTC()})
	if err != nil || second.ID != first.ID {
		t.Fatalf("expected the first profile to be kept, got %+v err=%v", second, err)
	}
	if _, err := stores.Users.EnsureDeveloperProfile(ctx, authkit.DeveloperProfile{ID: uuid.NewString(), UserID: "missing-" + uuid.NewString()}); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
