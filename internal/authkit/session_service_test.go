package authkit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
	"go.uber.org/zap/zaptest"
)

type sessionFixture struct {
	service   *SessionService
	users     *MemoryUserStore
	clock     *controllableClock
	metrics   *CounterMetrics
	validator *sessionvalidator.Validator
}

func newSessionFixture(t *testing.T) sessionFixture {
	t.Helper()
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	users := NewMemoryUserStore()
	metrics := NewCounterMetrics()
	configuration := testServerConfig()
	service, err := NewSessionService(configuration, SessionDependencies{
		Users:         users,
		RefreshTokens: NewMemoryRefreshTokenStore(),
		Clock:         clock,
		Metrics:       metrics,
		Logger:        zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("new session service: %v", err)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.AppJWTSigningKey,
		Issuer:     configuration.AppJWTIssuer,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return sessionFixture{service: service, users: users, clock: clock, metrics: metrics, validator: validator}
}

func TestSessionServiceMarketplaceScenario(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	registered, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.Role != RoleUser || registered.ID == "" {
		t.Fatalf("unexpected registered user %+v", registered)
	}

	login, err := fixture.service.Login(ctx, LoginInput{Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.TokenType != "Bearer" || login.ExpiresIn != int64((15*time.Minute).Seconds()) {
		t.Fatalf("unexpected token metadata %+v", login)
	}
	claims, err := fixture.validator.ValidateToken(login.AccessToken)
	if err != nil {
		t.Fatalf("validate login token: %v", err)
	}
	if claims.UserRole != string(RoleUser) || claims.UserID != registered.ID {
		t.Fatalf("unexpected login claims %+v", claims)
	}

	upgraded, err := fixture.service.BecomeDeveloper(ctx, registered.ID)
	if err != nil {
		t.Fatalf("become developer: %v", err)
	}
	if upgraded.User.Role != RoleDeveloper {
		t.Fatalf("expected DEVELOPER, got %q", upgraded.User.Role)
	}
	upgradedClaims, err := fixture.validator.ValidateToken(upgraded.AccessToken)
	if err != nil {
		t.Fatalf("validate upgraded token: %v", err)
	}
	if !Admits(Role(upgradedClaims.UserRole), RoleDeveloper) {
		t.Fatalf("expected upgraded token to be admitted as DEVELOPER")
	}
	if Admits(Role(claims.UserRole), RoleDeveloper) {
		t.Fatalf("expected the earlier token to keep its USER role")
	}

	rotated, err := fixture.service.Refresh(ctx, upgraded.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == upgraded.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
	if _, err := fixture.service.Refresh(ctx, upgraded.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
	if _, err := fixture.service.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("expected rotated token to be usable once, got %v", err)
	}

	if fixture.metrics.Count(MetricRegisterSuccess) != 1 || fixture.metrics.Count(MetricLoginSuccess) != 1 {
		t.Fatalf("unexpected metrics %v", fixture.metrics.Snapshot())
	}
	if fixture.metrics.Count(MetricRefreshSuccess) != 2 || fixture.metrics.Count(MetricRefreshFailure) != 1 {
		t.Fatalf("unexpected refresh metrics %v", fixture.metrics.Snapshot())
	}
	if fixture.metrics.Count(MetricUpgradeSuccess) != 1 {
		t.Fatalf("unexpected upgrade metrics %v", fixture.metrics.Snapshot())
	}
}

func TestSessionServiceRegisterValidationAndConflict(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	_, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Message != "name, email, and password are required" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if _, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := fixture.service.Register(ctx, RegisterInput{Name: "Other", Email: "a@x", Password: "pw2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if fixture.metrics.Count(MetricRegisterFailure) != 1 {
		t.Fatalf("expected one register failure, got %d", fixture.metrics.Count(MetricRegisterFailure))
	}
}

func TestSessionServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	if _, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, wrongPassword := fixture.service.Login(ctx, LoginInput{Email: "a@x", Password: "nope"})
	_, unknownEmail := fixture.service.Login(ctx, LoginInput{Email: "b@x", Password: "pw1"})
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v and %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("expected identical errors, got %q and %q", wrongPassword, unknownEmail)
	}

	_, err := fixture.service.Login(ctx, LoginInput{Email: "a@x"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Message != "email and password are required" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionServiceRefreshEdgeCases(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	_, err := fixture.service.Refresh(ctx, "  ")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Message != "refreshToken is required" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := fixture.service.Refresh(ctx, "never-issued"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected unknown token to fail, got %v", err)
	}

	if _, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := fixture.service.Login(ctx, LoginInput{Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	fixture.clock.Advance(24 * time.Hour)
	if _, err := fixture.service.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh token to expire at its lifetime, got %v", err)
	}
}

func TestSessionServiceRefreshForDeletedUser(t *testing.T) {
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	refreshStore := NewMemoryRefreshTokenStore()
	service, err := NewSessionService(testServerConfig(), SessionDependencies{
		Users:         NewMemoryUserStore(),
		RefreshTokens: refreshStore,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("new session service: %v", err)
	}
	if _, err := service.Ledger().Create(context.Background(), "ghost", "orphan-token", time.Hour, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Refresh(context.Background(), "orphan-token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for a missing user, got %v", err)
	}
}

type switchableRefreshStore struct {
	RefreshTokenStore
	failInserts atomic.Bool
}

func (store *switchableRefreshStore) Insert(ctx context.Context, record RefreshTokenRecord) error {
	if store.failInserts.Load() {
		return errors.New("refresh store unavailable")
	}
	return store.RefreshTokenStore.Insert(ctx, record)
}

func TestSessionServiceIssuanceFailuresAreCounted(t *testing.T) {
	clock := newControllableClock(time.Unix(1700000000, 0).UTC())
	refreshStore := &switchableRefreshStore{RefreshTokenStore: NewMemoryRefreshTokenStore()}
	metrics := NewCounterMetrics()
	service, err := NewSessionService(testServerConfig(), SessionDependencies{
		Users:         NewMemoryUserStore(),
		RefreshTokens: refreshStore,
		Clock:         clock,
		Metrics:       metrics,
		Logger:        zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("new session service: %v", err)
	}
	ctx := context.Background()
	if _, err := service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := service.Login(ctx, LoginInput{Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshStore.failInserts.Store(true)
	if _, err := service.Login(ctx, LoginInput{Email: "a@x", Password: "pw1"}); err == nil {
		t.Fatalf("expected login to fail when the refresh record cannot be stored")
	}
	if _, err := service.Refresh(ctx, login.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail when the rotated record cannot be stored")
	}
	if metrics.Count(MetricLoginFailure) != 1 || metrics.Count(MetricLoginSuccess) != 1 {
		t.Fatalf("unexpected login metrics %v", metrics.Snapshot())
	}
	if metrics.Count(MetricRefreshFailure) != 1 || metrics.Count(MetricRefreshSuccess) != 0 {
		t.Fatalf("unexpected refresh metrics %v", metrics.Snapshot())
	}

	refreshStore.failInserts.Store(false)
	if _, err := service.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected the consumed token to stay spent, got %v", err)
	}
}

func TestSessionServiceBecomeDeveloperIsIdempotent(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	registered, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		result, err := fixture.service.BecomeDeveloper(ctx, registered.ID)
		if err != nil {
			t.Fatalf("become developer attempt %d: %v", attempt, err)
		}
		if result.User.Role != RoleDeveloper {
			t.Fatalf("expected DEVELOPER, got %q", result.User.Role)
		}
	}
	if count := countDeveloperProfiles(t, fixture.users, registered.ID); count != 1 {
		t.Fatalf("expected exactly one developer profile, got %d", count)
	}

	if _, err := fixture.service.BecomeDeveloper(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionServiceBecomeDeveloperKeepsAdmin(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	registered, err := fixture.service.Register(ctx, RegisterInput{Name: "Root", Email: "root@x", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := fixture.users.SetUserRole(ctx, registered.ID, RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	result, err := fixture.service.BecomeDeveloper(ctx, registered.ID)
	if err != nil {
		t.Fatalf("become developer: %v", err)
	}
	if result.User.Role != RoleAdmin {
		t.Fatalf("expected ADMIN to be kept, got %q", result.User.Role)
	}
}

func TestSessionServiceCurrentUser(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	registered, err := fixture.service.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x", Password: "pw1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	current, err := fixture.service.CurrentUser(ctx, registered.ID)
	if err != nil || current != registered {
		t.Fatalf("expected %+v, got %+v err=%v", registered, current, err)
	}
	if _, err := fixture.service.CurrentUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSessionServiceValidatesConfiguration(t *testing.T) {
	dependencies := SessionDependencies{Users: NewMemoryUserStore(), RefreshTokens: NewMemoryRefreshTokenStore()}

	missingKey := testServerConfig()
	missingKey.AppJWTSigningKey = nil
	if _, err := NewSessionService(missingKey, dependencies); err == nil {
		t.Fatalf("expected missing signing key to be rejected")
	}

	zeroTTL := testServerConfig()
	zeroTTL.AccessTTL = 0
	if _, err := NewSessionService(zeroTTL, dependencies); err == nil {
		t.Fatalf("expected zero access ttl to be rejected")
	}

	if _, err := NewSessionService(testServerConfig(), SessionDependencies{}); err == nil {
		t.Fatalf("expected missing stores to be rejected")
	}
}

func TestCredentialStoreAuthenticateAgainstDatabase(t *testing.T) {
	hasher, err := NewPasswordHasher(lowCostHashParams())
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	credentials := NewCredentialStore(NewDatabaseUserStore(openTestDatabase(t)), hasher, nil)
	ctx := context.Background()

	user, err := credentials.Register(ctx, "Ada", "a@x", "pw1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash == "pw1" || user.PasswordHash == "" {
		t.Fatalf("expected hashed password")
	}
	authenticated, err := credentials.Authenticate(ctx, "a@x", "pw1")
	if err != nil || authenticated.ID != user.ID {
		t.Fatalf("expected authentication to succeed, got %+v err=%v", authenticated, err)
	}
	if _, err := credentials.Authenticate(ctx, "a@x", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := credentials.Register(ctx, "Ada", "a@x", "pw3"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := credentials.SetRole(ctx, user.ID, Role("OWNER")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
}
