package authkit

import (
	"context"
	"fmt"
	"time"
)

// TokenPair is an access token with its single-use refresh companion.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshRecordID  string
	RefreshExpiresAt time.Time
}

// TokenIssuer mints access tokens and records refresh tokens in the ledger.
type TokenIssuer struct {
	configuration ServerConfig
	ledger        *RefreshTokenLedger
	clock         Clock
}

// NewTokenIssuer constructs an issuer over the ledger.
func NewTokenIssuer(configuration ServerConfig, ledger *RefreshTokenLedger, clock Clock) *TokenIssuer {
	return &TokenIssuer{
		configuration: configuration,
		ledger:        ledger,
		clock:         clockOrSystem(clock),
	}
}

// Issue returns a pair for user only after its refresh record is persisted.
// previousTokenID links a rotated record to the one it replaced.
func (issuer *TokenIssuer) Issue(ctx context.Context, user User, previousTokenID string) (TokenPair, error) {
	accessToken, accessExpiresAt, mintErr := MintAccessToken(issuer.clock, user, issuer.configuration.AppJWTIssuer, issuer.configuration.AppJWTSigningKey, issuer.configuration.AccessTTL)
	if mintErr != nil {
		return TokenPair{}, fmt.Errorf("token_issuer.issue: %w", mintErr)
	}
	refreshOpaque, _, randomErr := generateRefreshOpaque()
	if randomErr != nil {
		return TokenPair{}, fmt.Errorf("token_issuer.issue: %w", randomErr)
	}
	record, createErr := issuer.ledger.Create(ctx, user.ID, refreshOpaque, issuer.configuration.RefreshTTL, previousTokenID)
	if createErr != nil {
		return TokenPair{}, fmt.Errorf("token_issuer.issue: %w", createErr)
	}
	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshOpaque,
		RefreshRecordID:  record.ID,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}
