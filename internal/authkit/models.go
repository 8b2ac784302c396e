package authkit

import "time"

// User is a registered identity. PasswordHash is only ever checked through PasswordHasher.Verify.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// PublicUser is the sanitized view returned to callers.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public strips credential material from the user.
func (user User) Public() PublicUser {
	return PublicUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

// DeveloperProfile marks that a user holds a developer identity.
type DeveloperProfile struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// RefreshTokenRecord is one issued refresh credential. Only the hash of the raw value is kept.
type RefreshTokenRecord struct {
	ID              string
	UserID          string
	TokenHash       string
	PreviousTokenID string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	RevokedAt       *time.Time
}

// Usable reports whether the record can still be redeemed at now.
func (record RefreshTokenRecord) Usable(now time.Time) bool {
	return record.RevokedAt == nil && now.Before(record.ExpiresAt)
}
