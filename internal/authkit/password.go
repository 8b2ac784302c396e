package authkit

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	maxVerifyMemoryKiB = 1024 * 1024
	maxVerifyTime      = 64
)

// PasswordHasher hashes and verifies passwords with argon2id in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
type PasswordHasher struct {
	params    PasswordHashParams
	dummySalt []byte
}

// NewPasswordHasher validates params and constructs a hasher.
func NewPasswordHasher(params PasswordHashParams) (*PasswordHasher, error) {
	if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
		return nil, fmt.Errorf("password.params: time, memory, and threads must be positive")
	}
	if params.KeyLength == 0 || params.SaltLength == 0 {
		return nil, fmt.Errorf("password.params: key and salt lengths must be positive")
	}
	return &PasswordHasher{
		params:    params,
		dummySalt: make([]byte, params.SaltLength),
	}, nil
}

// Hash returns a salted digest of plaintext. Two calls never return the same digest.
func (hasher *PasswordHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, hasher.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password.salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, hasher.params.Time, hasher.params.MemoryKiB, hasher.params.Threads, hasher.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hasher.params.MemoryKiB, hasher.params.Time, hasher.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest. A malformed digest yields false.
func (hasher *PasswordHasher) Verify(plaintext string, digest string) bool {
	decoded, ok := decodePHC(digest)
	if !ok {
		return false
	}
	candidate := argon2.IDKey([]byte(plaintext), decoded.salt, decoded.time, decoded.memoryKiB, decoded.threads, uint32(len(decoded.key)))
	return subtle.ConstantTimeCompare(decoded.key, candidate) == 1
}

// VerifyAbsent spends the same work as Verify for a principal that does not exist,
// so a missing account cannot be told apart from a wrong password by timing.
func (hasher *PasswordHasher) VerifyAbsent(plaintext string) bool {
	_ = argon2.IDKey([]byte(plaintext), hasher.dummySalt, hasher.params.Time, hasher.params.MemoryKiB, hasher.params.Threads, hasher.params.KeyLength)
	return false
}

type decodedDigest struct {
	salt      []byte
	key       []byte
	time      uint32
	memoryKiB uint32
	threads   uint8
}

func decodePHC(encoded string) (decodedDigest, bool) {
	var decoded decodedDigest
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decoded, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return decoded, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &decoded.memoryKiB, &decoded.time, &decoded.threads); err != nil {
		return decoded, false
	}
	if decoded.time == 0 || decoded.memoryKiB == 0 || decoded.threads == 0 {
		return decoded, false
	}
	if decoded.time > maxVerifyTime || decoded.memoryKiB > maxVerifyMemoryKiB {
		return decoded, false
	}
	salt, saltErr := base64.RawStdEncoding.DecodeString(parts[4])
	if saltErr != nil || len(salt) == 0 {
		return decoded, false
	}
	key, keyErr := base64.RawStdEncoding.DecodeString(parts[5])
	if keyErr != nil || len(key) == 0 {
		return decoded, false
	}
	decoded.salt = salt
	decoded.key = key
	return decoded, true
}
