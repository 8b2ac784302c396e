package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tyemirov/webharbour/internal/authkit"
)

const redeemRefreshTokenSQL = `
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING token_id, user_id, token_hash, previous_token_id, issued_at, expires_at, revoked_at
`

// PostgresRefreshTokenStore persists rotating refresh tokens in PostgreSQL.
type PostgresRefreshTokenStore struct {
	pool Querier
}

// NewPostgresRefreshTokenStore constructs a Postgres store.
func NewPostgresRefreshTokenStore(pool Querier) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{pool: pool}
}

// Insert writes a new, unrevoked record.
func (store *PostgresRefreshTokenStore) Insert(ctx context.Context, record authkit.RefreshTokenRecord) error {
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_tokens (token_id, user_id, token_hash, previous_token_id, issued_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6, NULL)
`, record.ID, record.UserID, record.TokenHash, record.PreviousTokenID, record.IssuedAt.UTC(), record.ExpiresAt.UTC())
	if execErr != nil {
		return fmt.Errorf("refresh_store.insert.pgx: %w", execErr)
	}
	return nil
}

// Redeem revokes and returns the record in one UPDATE ... RETURNING; no row means the token is unusable.
func (store *PostgresRefreshTokenStore) Redeem(ctx context.Context, tokenHash string, now time.Time) (authkit.RefreshTokenRecord, error) {
	var record authkit.RefreshTokenRecord
	var revokedAt time.Time
	scanErr := store.pool.QueryRow(ctx, redeemRefreshTokenSQL, tokenHash, now.UTC()).Scan(
		&record.ID,
		&record.UserID,
		&record.TokenHash,
		&record.PreviousTokenID,
		&record.IssuedAt,
		&record.ExpiresAt,
		&revokedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.pgx: %w", authkit.ErrInvalidRefreshToken)
		}
		return authkit.RefreshTokenRecord{}, fmt.Errorf("refresh_store.redeem.pgx: %w", scanErr)
	}
	revokedAt = revokedAt.UTC()
	record.RevokedAt = &revokedAt
	record.IssuedAt = record.IssuedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	return record, nil
}

// PurgeExpired deletes records that expired before the cutoff.
func (store *PostgresRefreshTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	commandTag, err := store.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("refresh_store.purge.pgx: %w", err)
	}
	return commandTag.RowsAffected(), nil
}
