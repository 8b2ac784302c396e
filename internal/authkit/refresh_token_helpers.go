package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const refreshOpaqueByteLength = 48

var refreshTokenRandomSource io.Reader = rand.Reader

func newRecordID() string {
	return uuid.NewString()
}

func generateRefreshOpaque() (string, string, error) {
	randomBytes := make([]byte, refreshOpaqueByteLength)
	if _, err := io.ReadFull(refreshTokenRandomSource, randomBytes); err != nil {
		return "", "", fmt.Errorf("refresh_token.random: %w", err)
	}
	opaque := hex.EncodeToString(randomBytes)
	return opaque, HashRefreshToken(opaque), nil
}

// HashRefreshToken returns the hex SHA-256 digest stored in place of the raw refresh token.
func HashRefreshToken(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return hex.EncodeToString(sum[:])
}
