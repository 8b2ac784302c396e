package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
)

var errEmptySubject = errors.New("subject must be non-empty")

// MintAccessToken creates a signed HS256 access token carrying id, email, and role.
func MintAccessToken(clock Clock, user User, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if user.ID == "" {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", errEmptySubject)
	}
	issuedAt := clockOrSystem(clock).Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionvalidator.Claims{
		UserID:    user.ID,
		UserEmail: user.Email,
		UserRole:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.sign: %w", err)
	}
	return signed, expiresAt, nil
}
