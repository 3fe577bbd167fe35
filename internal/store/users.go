package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	PhoneNumber  string
	Role         string
	Enabled      bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

const userColumns = `id, username, email, password_hash, first_name, last_name, phone_number, role, enabled, last_login_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.Role, &u.Enabled, &u.LastLoginAt, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	const stmt = `
INSERT INTO users (username, email, password_hash, first_name, last_name, phone_number, role)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, enabled, created_at`

	err := s.queryRow(ctx, stmt,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.PhoneNumber,
		u.Role,
	).Scan(&u.ID, &u.Enabled, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(constraintName(err), "email") {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByIdentifier finds a user by username or email, case-insensitively.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)`
	u, err := scanUser(s.queryRow(ctx, query, identifier))
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.queryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// RevokeToken records a token ID so the middleware rejects it until expiry.
// Revoking the same token twice is a no-op, which keeps logout idempotent.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	const stmt = `INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`
	if _, err := s.exec(ctx, stmt, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// PurgeExpiredTokens drops revocation rows whose tokens have expired anyway.
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := s.exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
