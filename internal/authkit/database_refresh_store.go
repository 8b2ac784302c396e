package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DatabaseRefreshTokenStore persists rotating refresh tokens using GORM.
// Timestamps are kept as unix nanoseconds so expiry compares at the same precision as the ledger clock.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
}

type refreshTokenRow struct {
	TokenID         string `gorm:"column:token_id;primaryKey"`
	UserID          string `gorm:"column:user_id;index;not null"`
	TokenHash       string `gorm:"column:token_hash;uniqueIndex;not null"`
	PreviousTokenID string `gorm:"column:previous_token_id;not null;default:''"`
	IssuedAtNano    int64  `gorm:"column:issued_at_unix_nano;not null"`
	ExpiresAtNano   int64  `gorm:"column:expires_at_unix_nano;index;not null"`
	RevokedAtNano   *int64 `gorm:"column:revoked_at_unix_nano"`
}

func (refreshTokenRow) TableName() string {
	return "refresh_tokens"
}

func (row refreshTokenRow) toRecord() RefreshTokenRecord {
	record := RefreshTokenRecord{
		ID:              row.TokenID,
		UserID:          row.UserID,
		TokenHash:       row.TokenHash,
		PreviousTokenID: row.PreviousTokenID,
		IssuedAt:        time.Unix(0, row.IssuedAtNano).UTC(),
		ExpiresAt:       time.Unix(0, row.ExpiresAtNano).UTC(),
	}
	if row.RevokedAtNano != nil {
		revokedAt := time.Unix(0, *row.RevokedAtNano).UTC()
		record.RevokedAt = &revokedAt
	}
	return record
}

// NewDatabaseRefreshTokenStore binds a refresh token store to an opened database.
func NewDatabaseRefreshTokenStore(database *Database) *DatabaseRefreshTokenStore {
	return &DatabaseRefreshTokenStore{
		db:          database.DB,
		driverLabel: database.DriverLabel,
	}
}

// Insert writes a new, unrevoked refresh token record.
func (store *DatabaseRefreshTokenStore) Insert(ctx context.Context, record RefreshTokenRecord) error {
	row := refreshTokenRow{
		TokenID:         record.ID,
		UserID:          record.UserID,
		TokenHash:       record.TokenHash,
		PreviousTokenID: record.PreviousTokenID,
		IssuedAtNano:    record.IssuedAt.UnixNano(),
		ExpiresAtNano:   record.ExpiresAt.UnixNano(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("refresh_store.insert.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Redeem revokes the record with a single UPDATE guarded by revoked_at_unix_nano IS NULL.
// Of several concurrent callers only one sees a row affected.
func (store *DatabaseRefreshTokenStore) Redeem(ctx context.Context, tokenHash string, now time.Time) (RefreshTokenRecord, error) {
	nowNano := now.UTC().UnixNano()
	result := store.db.WithContext(ctx).Model(&refreshTokenRow{}).
		Where("token_hash = ? AND revoked_at_unix_nano IS NULL AND expires_at_unix_nano > ?", tokenHash, nowNano).
		Update("revoked_at_unix_nano", nowNano)
	if result.Error != nil {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.%s: %w", store.driverLabel, ErrInvalidRefreshToken)
	}
	var row refreshTokenRow
	if err := store.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.%s: %w", store.driverLabel, ErrInvalidRefreshToken)
		}
		return RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.%s: %w", store.driverLabel, err)
	}
	return row.toRecord(), nil
}

// PurgeExpired deletes records that expired before the cutoff.
func (store *DatabaseRefreshTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result := store.db.WithContext(ctx).Where("expires_at_unix_nano < ?", before.UTC().UnixNano()).Delete(&refreshTokenRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.purge.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}
