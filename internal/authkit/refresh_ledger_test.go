package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRefreshTokenLedgerCreateStoresHashOnly(t *testing.T) {
	t.Parallel()
	clock := fixedClock{timestamp: time.Unix(1700000000, 0).UTC()}
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), clock)

	record, err := ledger.Create(context.Background(), "user-1", "raw-token", time.Hour, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.TokenHash == "raw-token" || record.TokenHash != HashRefreshToken("raw-token") {
		t.Fatalf("expected hashed token, got %q", record.TokenHash)
	}
	if !record.ExpiresAt.Equal(clock.timestamp.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", record.ExpiresAt)
	}
	if record.RevokedAt != nil {
		t.Fatalf("new record must not be revoked")
	}
}

func TestRefreshTokenLedgerRedeemsJustBeforeExpiryOnDatabase(t *testing.T) {
	clock := newControllableClock(time.Unix(1700000000, 700123456).UTC())
	ledger := NewRefreshTokenLedger(NewDatabaseRefreshTokenStore(openTestDatabase(t)), clock)
	ctx := context.Background()

	record, err := ledger.Create(ctx, "user-1", "raw-subsecond", time.Hour, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.IssuedAt.Nanosecond()%int(time.Microsecond) != 0 {
		t.Fatalf("expected issue time truncated to microseconds, got %v", record.IssuedAt)
	}
	clock.Advance(time.Hour - 300*time.Millisecond)
	if _, err := ledger.Redeem(ctx, "raw-subsecond"); err != nil {
		t.Fatalf("expected redeem 300ms before expiry to succeed, got %v", err)
	}
}

func TestRefreshTokenLedgerCreateValidatesInput(t *testing.T) {
	t.Parallel()
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), nil)
	if _, err := ledger.Create(context.Background(), "user-1", " ", time.Hour, ""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
	if _, err := ledger.Create(context.Background(), "user-1", "raw", 0, ""); err == nil {
		t.Fatalf("expected non-positive lifetime to be rejected")
	}
}

func TestRefreshTokenLedgerRedeemLifecycle(t *testing.T) {
	t.Parallel()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), clock)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, "user-1", "raw-a", time.Hour, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ledger.Create(ctx, "user-1", "raw-b", time.Hour, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	redeemed, err := ledger.Redeem(ctx, "raw-a")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.UserID != "user-1" {
		t.Fatalf("unexpected record %+v", redeemed)
	}
	if _, err := ledger.Redeem(ctx, "raw-a"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
	if _, err := ledger.Redeem(ctx, ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected empty token to fail, got %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := ledger.Redeem(ctx, "raw-b"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestRefreshTokenLedgerPurgeHonorsRetention(t *testing.T) {
	t.Parallel()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), clock)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, "user-1", "raw-a", time.Hour, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(90 * time.Minute)
	removed, err := ledger.PurgeExpired(ctx, time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("expected retention to keep the record, removed=%d err=%v", removed, err)
	}
	clock.Advance(time.Hour)
	removed, err = ledger.PurgeExpired(ctx, time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("expected record to be purged, removed=%d err=%v", removed, err)
	}
}

func TestRefreshTokenPurgerRunOnce(t *testing.T) {
	t.Parallel()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), clock)
	if _, err := ledger.Create(context.Background(), "user-1", "raw-a", time.Minute, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(time.Hour)

	purger, err := NewRefreshTokenPurger(ledger, "@every 1h", 0, zap.NewNop())
	if err != nil {
		t.Fatalf("new purger: %v", err)
	}
	removed, err := purger.RunOnce(context.Background())
	if err != nil || removed != 1 {
		t.Fatalf("expected one purged record, removed=%d err=%v", removed, err)
	}
	purger.Start()
	<-purger.Stop().Done()
}

func TestNewRefreshTokenPurgerRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), nil)
	if _, err := NewRefreshTokenPurger(ledger, "not a schedule", time.Hour, nil); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}
	if _, err := NewRefreshTokenPurger(ledger, "@daily", -time.Hour, nil); err == nil {
		t.Fatalf("expected negative retention to be rejected")
	}
}

type failingRefreshStore struct {
	RefreshTokenStore
	insertErr error
}

func (store failingRefreshStore) Insert(ctx context.Context, record RefreshTokenRecord) error {
	return store.insertErr
}

func TestTokenIssuerReturnsNothingWhenRecordFails(t *testing.T) {
	t.Parallel()
	insertErr := errors.New("disk full")
	ledger := NewRefreshTokenLedger(failingRefreshStore{RefreshTokenStore: NewMemoryRefreshTokenStore(), insertErr: insertErr}, nil)
	issuer := NewTokenIssuer(testServerConfig(), ledger, nil)

	pair, err := issuer.Issue(context.Background(), User{ID: "user-1", Email: "a@example.com", Role: RoleUser}, "")
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		t.Fatalf("expected no tokens when the refresh record was not stored")
	}
}

func TestTokenIssuerLinksRotatedRecords(t *testing.T) {
	t.Parallel()
	clock := fixedClock{timestamp: time.Unix(1700000000, 0).UTC()}
	ledger := NewRefreshTokenLedger(NewMemoryRefreshTokenStore(), clock)
	issuer := NewTokenIssuer(testServerConfig(), ledger, clock)
	ctx := context.Background()
	user := User{ID: "user-1", Email: "a@example.com", Role: RoleUser}

	first, err := issuer.Issue(ctx, user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := issuer.Issue(ctx, user, first.RefreshRecordID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatalf("expected distinct refresh tokens")
	}
	if !second.AccessExpiresAt.Equal(clock.timestamp.Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", second.AccessExpiresAt)
	}
	redeemed, err := ledger.Redeem(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.PreviousTokenID != first.RefreshRecordID {
		t.Fatalf("expected rotated record to reference %q, got %q", first.RefreshRecordID, redeemed.PreviousTokenID)
	}
}
