package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tyemirov/webharbour/internal/authkit"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// PostgresUserStore persists users and developer profiles in PostgreSQL.
type PostgresUserStore struct {
	pool Querier
}

// NewPostgresUserStore constructs a Postgres user store.
func NewPostgresUserStore(pool Querier) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// CreateUser inserts a user; the unique email constraint surfaces as authkit.ErrConflict.
func (store *PostgresUserStore) CreateUser(ctx context.Context, user authkit.User) error {
	_, err := store.pool.Exec(ctx, `
INSERT INTO users (user_id, name, email, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user_store.create.pgx: %w", authkit.ErrConflict)
		}
		return fmt.Errorf("user_store.create.pgx: %w", err)
	}
	return nil
}

// FindUserByEmail looks a user up by exact email.
func (store *PostgresUserStore) FindUserByEmail(ctx context.Context, email string) (authkit.User, bool, error) {
	return store.findOne(ctx, `
SELECT user_id, name, email, password_hash, role, created_at
FROM users
WHERE email = $1
`, email)
}

// FindUserByID looks a user up by id.
func (store *PostgresUserStore) FindUserByID(ctx context.Context, userID string) (authkit.User, bool, error) {
	return store.findOne(ctx, `
SELECT user_id, name, email, password_hash, role, created_at
FROM users
WHERE user_id = $1
`, userID)
}

func (store *PostgresUserStore) findOne(ctx context.Context, query string, argument string) (authkit.User, bool, error) {
	var user authkit.User
	var role string
	scanErr := store.pool.QueryRow(ctx, query, argument).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.User{}, false, nil
		}
		return authkit.User{}, false, fmt.Errorf("user_store.find.pgx: %w", scanErr)
	}
	user.Role, _ = authkit.ParseRole(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, true, nil
}

// SetUserRole overwrites the stored role.
func (store *PostgresUserStore) SetUserRole(ctx context.Context, userID string, role authkit.Role) error {
	commandTag, err := store.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE user_id = $1`, userID, string(role))
	if err != nil {
		return fmt.Errorf("user_store.set_role.pgx: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("user_store.set_role.pgx: %w", authkit.ErrNotFound)
	}
	return nil
}

// EnsureDeveloperProfile inserts the profile unless one exists and returns the stored row.
func (store *PostgresUserStore) EnsureDeveloperProfile(ctx context.Context, profile authkit.DeveloperProfile) (authkit.DeveloperProfile, error) {
	_, err := store.pool.Exec(ctx, `
INSERT INTO developer_profiles (profile_id, user_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING
`, profile.ID, profile.UserID, profile.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return authkit.DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.pgx: %w", authkit.ErrNotFound)
		}
		return authkit.DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.pgx: %w", err)
	}
	var stored authkit.DeveloperProfile
	var createdAt time.Time
	scanErr := store.pool.QueryRow(ctx, `
SELECT profile_id, user_id, created_at FROM developer_profiles WHERE user_id = $1
`, profile.UserID).Scan(&stored.ID, &stored.UserID, &createdAt)
	if scanErr != nil {
		return authkit.DeveloperProfile{}, fmt.Errorf("user_store.developer_profile.pgx: %w", scanErr)
	}
	stored.CreatedAt = createdAt.UTC()
	return stored, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
