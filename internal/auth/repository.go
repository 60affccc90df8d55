// Package auth handles username/password registration and login.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// credentials is the minimal row needed to verify a login.
type credentials struct {
	UserID       string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
}

// errNoCredentials is returned when no account matches the login.
var errNoCredentials = errors.New("no matching credentials")

// Repository reads credential data from the users table.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new auth Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindCredentials looks up an account by username or email, ignoring case.
func (r *Repository) FindCredentials(ctx context.Context, login string) (*credentials, error) {
	c := &credentials{}
	err := r.db.GetContext(ctx, c,
		`SELECT id, username, password_hash
		 FROM users
		 WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		 LIMIT 1`,
		login,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	return c, nil
}

// UserExists reports whether the username or (non-empty) email is taken.
func (r *Repository) UserExists(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM users
		 WHERE LOWER(username) = LOWER($1) OR ($2 <> '' AND LOWER(email) = LOWER($2))`,
		username, email,
	)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}
	return n > 0, nil
}
