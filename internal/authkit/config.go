package authkit

import "time"

// PasswordHashParams tunes the argon2id work factor.
type PasswordHashParams struct {
	Time       uint32
	MemoryKiB  uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// DefaultPasswordHashParams returns the production argon2id parameters.
func DefaultPasswordHashParams() PasswordHashParams {
	return PasswordHashParams{
		Time:       3,
		MemoryKiB:  64 * 1024,
		Threads:    2,
		KeyLength:  32,
		SaltLength: 16,
	}
}

// ServerConfig configures issuers, token lifetimes, and password hashing.
// It is built once at startup and passed by value; nothing mutates it afterwards.
type ServerConfig struct {
	AppJWTSigningKey []byte
	AppJWTIssuer     string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	PasswordHashing  PasswordHashParams
}
