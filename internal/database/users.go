package database

import (
	"context"
	"database/sql"
	"fmt"

	"therapymeet/pkg/types"
)

// CreateUser inserts a new account. Username and email uniqueness is enforced
// by the schema; violations surface as wrapped driver errors.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, username, email, password_hash, role, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			user.ID,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.Role,
			user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	return m.queryUser(ctx, "SELECT id, username, email, password_hash, role, created_at FROM users WHERE id = ?", id)
}

func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return m.queryUser(ctx, "SELECT id, username, email, password_hash, role, created_at FROM users WHERE email = ?", email)
}

func (m *Manager) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return m.queryUser(ctx, "SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = ?", username)
}

func (m *Manager) queryUser(ctx context.Context, query string, arg any) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, query, arg)

	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// UpdateUser changes the mutable profile fields.
func (m *Manager) UpdateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE users
			SET username = ?, email = ?, password_hash = ?
			WHERE id = ?
		`
		result, err := db.ExecContext(ctx, query,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if affected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
