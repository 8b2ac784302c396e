package authkit

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

type controllableClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newControllableClock(start time.Time) *controllableClock {
	return &controllableClock{current: start}
}

func (clock *controllableClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

func lowCostHashParams() PasswordHashParams {
	return PasswordHashParams{
		Time:       1,
		MemoryKiB:  64,
		Threads:    1,
		KeyLength:  32,
		SaltLength: 16,
	}
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		AppJWTSigningKey: []byte("test-signing-key"),
		AppJWTIssuer:     "webharbour-test",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
		PasswordHashing:  lowCostHashParams(),
	}
}

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := OpenDatabase(t.Context(), "sqlite://"+filepath.Join(t.TempDir(), "authkit.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func countDeveloperProfiles(t *testing.T, store UserStore, userID string) int64 {
	t.Helper()
	switch typed := store.(type) {
	case *MemoryUserStore:
		typed.mutex.RLock()
		defer typed.mutex.RUnlock()
		if _, ok := typed.profiles[userID]; ok {
			return 1
		}
		return 0
	case *DatabaseUserStore:
		var count int64
		if err := typed.db.Model(&developerProfileRow{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			t.Fatalf("count developer profiles: %v", err)
		}
		return count
	default:
		t.Fatalf("cannot count developer profiles in %T", store)
		return 0
	}
}
