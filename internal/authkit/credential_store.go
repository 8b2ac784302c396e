package authkit

import (
	"context"
	"fmt"
)

// CredentialStore owns user identities and password checks.
type CredentialStore struct {
	users  UserStore
	hasher *PasswordHasher
	clock  Clock
}

// NewCredentialStore wires a user store to a password hasher.
func NewCredentialStore(users UserStore, hasher *PasswordHasher, clock Clock) *CredentialStore {
	return &CredentialStore{users: users, hasher: hasher, clock: clockOrSystem(clock)}
}

// Register hashes password and stores a new USER. A taken email fails with ErrConflict.
func (credentials *CredentialStore) Register(ctx context.Context, name string, email string, password string) (User, error) {
	if _, found, err := credentials.users.FindUserByEmail(ctx, email); err != nil {
		return User{}, fmt.Errorf("credentials.register: %w", err)
	} else if found {
		return User{}, fmt.Errorf("credentials.register: %w", ErrConflict)
	}
	passwordHash, hashErr := credentials.hasher.Hash(password)
	if hashErr != nil {
		return User{}, fmt.Errorf("credentials.register: %w", hashErr)
	}
	user := User{
		ID:           newRecordID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    credentials.clock.Now().UTC(),
	}
	// The unique index still decides races between concurrent registrations.
	if err := credentials.users.CreateUser(ctx, user); err != nil {
		return User{}, fmt.Errorf("credentials.register: %w", err)
	}
	return user, nil
}

// Authenticate returns the user for a matching email and password.
// Unknown email and wrong password both fail with ErrInvalidCredentials after the same hashing work.
func (credentials *CredentialStore) Authenticate(ctx context.Context, email string, password string) (User, error) {
	user, found, err := credentials.users.FindUserByEmail(ctx, email)
	if err != nil {
		return User{}, fmt.Errorf("credentials.authenticate: %w", err)
	}
	if !found {
		credentials.hasher.VerifyAbsent(password)
		return User{}, fmt.Errorf("credentials.authenticate: %w", ErrInvalidCredentials)
	}
	if !credentials.hasher.Verify(password, user.PasswordHash) {
		return User{}, fmt.Errorf("credentials.authenticate: %w", ErrInvalidCredentials)
	}
	return user, nil
}

// FindByID looks a user up by id.
func (credentials *CredentialStore) FindByID(ctx context.Context, userID string) (User, bool, error) {
	return credentials.users.FindUserByID(ctx, userID)
}

// SetRole assigns role; repeating the current role succeeds.
func (credentials *CredentialStore) SetRole(ctx context.Context, userID string, role Role) error {
	if !role.Valid() {
		return NewValidationError(fmt.Sprintf("unknown role %q", role))
	}
	if err := credentials.users.SetUserRole(ctx, userID, role); err != nil {
		return fmt.Errorf("credentials.set_role: %w", err)
	}
	return nil
}

// EnsureDeveloperProfile creates the user's developer profile if it does not exist yet.
func (credentials *CredentialStore) EnsureDeveloperProfile(ctx context.Context, userID string) (DeveloperProfile, error) {
	profile, err := credentials.users.EnsureDeveloperProfile(ctx, DeveloperProfile{
		ID:        newRecordID(),
		UserID:    userID,
		CreatedAt: credentials.clock.Now().UTC(),
	})
	if err != nil {
		return DeveloperProfile{}, fmt.Errorf("credentials.developer_profile: %w", err)
	}
	return profile, nil
}
