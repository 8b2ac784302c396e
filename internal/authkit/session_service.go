package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

// RegisterInput carries a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput carries a password login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResult is returned by every operation that issues a token pair.
type SessionResult struct {
	AccessToken  string     `json:"token"`
	TokenType    string     `json:"tokenType"`
	ExpiresIn    int64      `json:"expiresIn"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
}

// SessionDependencies are the collaborators of SessionService.
type SessionDependencies struct {
	Users         UserStore
	RefreshTokens RefreshTokenStore
	Clock         Clock
	Metrics       MetricsRecorder
	Logger        *zap.Logger
}

// SessionService runs register, login, refresh, and role upgrade.
type SessionService struct {
	configuration ServerConfig
	credentials   *CredentialStore
	ledger        *RefreshTokenLedger
	issuer        *TokenIssuer
	metrics       MetricsRecorder
	logger        *zap.Logger
}

// NewSessionService validates configuration and assembles the core components.
func NewSessionService(configuration ServerConfig, dependencies SessionDependencies) (*SessionService, error) {
	if len(configuration.AppJWTSigningKey) == 0 {
		return nil, fmt.Errorf("session.new: signing key is required")
	}
	if configuration.AccessTTL <= 0 || configuration.RefreshTTL <= 0 {
		return nil, fmt.Errorf("session.new: token lifetimes must be positive")
	}
	if dependencies.Users == nil || dependencies.RefreshTokens == nil {
		return nil, fmt.Errorf("session.new: user and refresh token stores are required")
	}
	hasher, hasherErr := NewPasswordHasher(configuration.PasswordHashing)
	if hasherErr != nil {
		return nil, fmt.Errorf("session.new: %w", hasherErr)
	}
	clock := clockOrSystem(dependencies.Clock)
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := NewRefreshTokenLedger(dependencies.RefreshTokens, clock)
	return &SessionService{
		configuration: configuration,
		credentials:   NewCredentialStore(dependencies.Users, hasher, clock),
		ledger:        ledger,
		issuer:        NewTokenIssuer(configuration, ledger, clock),
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Ledger exposes the refresh token ledger for housekeeping.
func (service *SessionService) Ledger() *RefreshTokenLedger {
	return service.ledger
}

// Register creates a USER and returns its sanitized identity.
func (service *SessionService) Register(ctx context.Context, input RegisterInput) (PublicUser, error) {
	if isBlank(input.Name) || isBlank(input.Email) || isBlank(input.Password) {
		return PublicUser{}, NewValidationError(registerFieldsMessage)
	}
	user, err := service.credentials.Register(ctx, input.Name, input.Email, input.Password)
	if err != nil {
		service.metrics.Increment(MetricRegisterFailure)
		if errors.Is(err, ErrConflict) {
			service.logger.Info("registration conflict", zap.String("code", "auth.register.conflict"))
		}
		return PublicUser{}, err
	}
	service.metrics.Increment(MetricRegisterSuccess)
	service.logger.Info("user registered", zap.String("code", "auth.register.success"), zap.String("user_id", user.ID))
	return user.Public(), nil
}

// Login verifies credentials and issues a token pair.
func (service *SessionService) Login(ctx context.Context, input LoginInput) (SessionResult, error) {
	if isBlank(input.Email) || isBlank(input.Password) {
		return SessionResult{}, NewValidationError(loginFieldsMessage)
	}
	user, err := service.credentials.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		service.metrics.Increment(MetricLoginFailure)
		if errors.Is(err, ErrInvalidCredentials) {
			service.logger.Info("login rejected", zap.String("code", "auth.login.invalid_credentials"))
		}
		return SessionResult{}, err
	}
	result, issueErr := service.issue(ctx, user, "")
	if issueErr != nil {
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Error("login issuance failed", zap.String("code", "auth.login.issue_failed"), zap.String("user_id", user.ID), zap.Error(issueErr))
		return SessionResult{}, issueErr
	}
	service.metrics.Increment(MetricLoginSuccess)
	return result, nil
}

// Refresh redeems refreshToken once and rotates it into a new pair for the same user.
func (service *SessionService) Refresh(ctx context.Context, refreshToken string) (SessionResult, error) {
	if isBlank(refreshToken) {
		return SessionResult{}, NewValidationError(refreshFieldsMessage)
	}
	record, redeemErr := service.ledger.Redeem(ctx, refreshToken)
	if redeemErr != nil {
		service.metrics.Increment(MetricRefreshFailure)
		if errors.Is(redeemErr, ErrInvalidRefreshToken) {
			service.logger.Info("refresh rejected", zap.String("code", "auth.refresh.invalid_token"))
		}
		return SessionResult{}, redeemErr
	}
	user, found, findErr := service.credentials.FindByID(ctx, record.UserID)
	if findErr != nil {
		service.metrics.Increment(MetricRefreshFailure)
		return SessionResult{}, fmt.Errorf("session.refresh: %w", findErr)
	}
	if !found {
		service.metrics.Increment(MetricRefreshFailure)
		service.logger.Warn("refresh for missing user", zap.String("code", "auth.refresh.user_missing"), zap.String("user_id", record.UserID))
		return SessionResult{}, fmt.Errorf("session.refresh: %w", ErrInvalidRefreshToken)
	}
	result, issueErr := service.issue(ctx, user, record.ID)
	if issueErr != nil {
		// The presented token is already spent; the client has to log in again.
		service.metrics.Increment(MetricRefreshFailure)
		service.logger.Error("refresh issuance failed", zap.String("code", "auth.refresh.issue_failed"), zap.String("user_id", user.ID), zap.Error(issueErr))
		return SessionResult{}, issueErr
	}
	service.metrics.Increment(MetricRefreshSuccess)
	return result, nil
}

// BecomeDeveloper promotes a USER to DEVELOPER, ensures a developer profile, and issues
// a pair carrying the current role. Higher roles are left untouched.
func (service *SessionService) BecomeDeveloper(ctx context.Context, userID string) (SessionResult, error) {
	user, found, findErr := service.credentials.FindByID(ctx, userID)
	if findErr != nil {
		return SessionResult{}, fmt.Errorf("session.become_developer: %w", findErr)
	}
	if !found {
		return SessionResult{}, fmt.Errorf("session.become_developer: %w", ErrNotFound)
	}
	if user.Role == RoleUser {
		if err := service.credentials.SetRole(ctx, user.ID, RoleDeveloper); err != nil {
			return SessionResult{}, fmt.Errorf("session.become_developer: %w", err)
		}
		user.Role = RoleDeveloper
		service.logger.Info("user promoted", zap.String("code", "auth.upgrade.promoted"), zap.String("user_id", user.ID))
	}
	if _, err := service.credentials.EnsureDeveloperProfile(ctx, user.ID); err != nil {
		return SessionResult{}, fmt.Errorf("session.become_developer: %w", err)
	}
	result, issueErr := service.issue(ctx, user, "")
	if issueErr != nil {
		return SessionResult{}, issueErr
	}
	service.metrics.Increment(MetricUpgradeSuccess)
	return result, nil
}

// CurrentUser re-reads the user behind an authenticated identity.
func (service *SessionService) CurrentUser(ctx context.Context, userID string) (PublicUser, error) {
	user, found, err := service.credentials.FindByID(ctx, userID)
	if err != nil {
		return PublicUser{}, fmt.Errorf("session.current_user: %w", err)
	}
	if !found {
		return PublicUser{}, fmt.Errorf("session.current_user: %w", ErrNotFound)
	}
	return user.Public(), nil
}

func (service *SessionService) issue(ctx context.Context, user User, previousTokenID string) (SessionResult, error) {
	pair, err := service.issuer.Issue(ctx, user, previousTokenID)
	if err != nil {
		service.logger.Error("token issuance failed", zap.String("code", "auth.issue.failure"), zap.String("user_id", user.ID), zap.Error(err))
		return SessionResult{}, fmt.Errorf("session.issue: %w", err)
	}
	return SessionResult{
		AccessToken:  pair.AccessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(service.configuration.AccessTTL.Seconds()),
		RefreshToken: pair.RefreshToken,
		User:         user.Public(),
	}, nil
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
