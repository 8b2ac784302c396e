package authkit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryUserStore keeps users in process memory for tests and local runs.
type MemoryUserStore struct {
	mutex    sync.RWMutex
	byID     map[string]User
	byEmail  map[string]string
	profiles map[string]DeveloperProfile
}

// NewMemoryUserStore constructs an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:     make(map[string]User),
		byEmail:  make(map[string]string),
		profiles: make(map[string]DeveloperProfile),
	}
}

// CreateUser inserts a user; emails are compared byte for byte.
func (store *MemoryUserStore) CreateUser(ctx context.Context, user User) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, taken := store.byEmail[user.Email]; taken {
		return fmt.Errorf("user_store.create.memory: %w", ErrConflict)
	}
	store.byID[user.ID] = user
	store.byEmail[user.Email] = user.ID
	return nil
}

// FindUserByEmail returns the user registered under email.
func (store *MemoryUserStore) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	userID, ok := store.byEmail[email]
	if !ok {
		return User{}, false, nil
	}
	user, ok := store.byID[userID]
	return user, ok, nil
}

// FindUserByID returns the user with the given id.
func (store *MemoryUserStore) FindUserByID(ctx context.Context, userID string) (User, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	user, ok := store.byID[userID]
	return user, ok, nil
}

// SetUserRole overwrites the user's role.
func (store *MemoryUserStore) SetUserRole(ctx context.Context, userID string, role Role) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("user_store.set_role.memory: %w", ErrNotFound)
	}
	user.Role = role
	store.byID[userID] = user
	return nil
}

// EnsureDeveloperProfile stores profile unless the user already has one.
func (store *MemoryUserStore) EnsureDeveloperProfile(ctx context.Context, profile DeveloperProfile) (DeveloperProfile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.byID[profile.UserID]; !ok {
		return DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.memory: %w", ErrNotFound)
	}
	if existing, ok := store.profiles[profile.UserID]; ok {
		return existing, nil
	}
	store.profiles[profile.UserID] = profile
	return profile, nil
}
