package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// UserRepository implements database.UserStore.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUserByUsername resolves a staff account for login.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	var u database.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, full_name, role, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new staff account.
func (r *UserRepository) CreateUser(ctx context.Context, u *database.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, full_name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, u.ID, u.Username, u.PasswordHash, u.FullName, u.Role)
	if isPQError(err, codeUniqueViolation) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
