package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseUserStore persists users and developer profiles using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

type userRow struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	Name          string `gorm:"column:name;not null"`
	Email         string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash  string `gorm:"column:password_hash;not null"`
	Role          string `gorm:"column:role;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (userRow) TableName() string {
	return "users"
}

func (row userRow) toUser() User {
	role, _ := ParseRole(row.Role)
	return User{
		ID:           row.UserID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         role,
		CreatedAt:    time.Unix(row.CreatedAtUnix, 0).UTC(),
	}
}

type developerProfileRow struct {
	ProfileID     string `gorm:"column:profile_id;primaryKey"`
	UserID        string `gorm:"column:user_id;uniqueIndex;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (developerProfileRow) TableName() string {
	return "developer_profiles"
}

// NewDatabaseUserStore binds a user store to an opened database.
func NewDatabaseUserStore(database *Database) *DatabaseUserStore {
	return &DatabaseUserStore{
		db:          database.DB,
		driverLabel: database.DriverLabel,
	}
}

// CreateUser inserts a user; the unique email index reports duplicates as ErrConflict.
func (store *DatabaseUserStore) CreateUser(ctx context.Context, user User) error {
	row := userRow{
		UserID:        user.ID,
		Name:          user.Name,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Role:          string(user.Role),
		CreatedAtUnix: user.CreatedAt.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrConflict)
		}
		return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// FindUserByEmail looks a user up by exact email.
func (store *DatabaseUserStore) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	return store.findOne(ctx, "email = ?", email)
}

// FindUserByID looks a user up by id.
func (store *DatabaseUserStore) FindUserByID(ctx context.Context, userID string) (User, bool, error) {
	return store.findOne(ctx, "user_id = ?", userID)
}

func (store *DatabaseUserStore) findOne(ctx context.Context, condition string, value string) (User, bool, error) {
	var row userRow
	err := store.db.WithContext(ctx).Where(condition, value).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, err)
	}
	return row.toUser(), true, nil
}

// SetUserRole overwrites the stored role.
func (store *DatabaseUserStore) SetUserRole(ctx context.Context, userID string, role Role) error {
	result := store.db.WithContext(ctx).Model(&userRow{}).
		Where("user_id = ?", userID).
		Update("role", string(role))
	if result.Error != nil {
		return fmt.Errorf("user_store.set_role.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user_store.set_role.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

// EnsureDeveloperProfile inserts the profile with ON CONFLICT DO NOTHING and reads back the stored row.
func (store *DatabaseUserStore) EnsureDeveloperProfile(ctx context.Context, profile DeveloperProfile) (DeveloperProfile, error) {
	if _, found, err := store.FindUserByID(ctx, profile.UserID); err != nil {
		return DeveloperProfile{}, err
	} else if !found {
		return DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.%s: %w", store.driverLabel, ErrNotFound)
	}
	row := developerProfileRow{
		ProfileID:     profile.ID,
		UserID:        profile.UserID,
		CreatedAtUnix: profile.CreatedAt.Unix(),
	}
	insertErr := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if insertErr != nil {
		return DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.%s: %w", store.driverLabel, insertErr)
	}
	var stored developerProfileRow
	if err := store.db.WithContext(ctx).Where("user_id = ?", profile.UserID).Take(&stored).Error; err != nil {
		return DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.%s: %w", store.driverLabel, err)
	}
	return DeveloperProfile{
		ID:        stored.ProfileID,
		UserID:    stored.UserID,
		CreatedAt: time.Unix(stored.CreatedAtUnix, 0).UTC(),
	}, nil
}
