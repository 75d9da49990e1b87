package repository

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type sqliteUserRepository struct {
	db *sqlx.DB
}

// NewSQLiteUserRepository creates a new SQLite-based UserRepository.
func NewSQLiteUserRepository(db *sqlx.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

// Create inserts a new user unless the username is already taken.
func (r *sqliteUserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.Create")
	defer span.End()

	query := `INSERT INTO users (username, id, password_hash, generation, created_at)
		VALUES (:username, :id, :password_hash, :generation, :created_at)
		ON CONFLICT(username) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if n == 0 {
		return models.ErrAlreadyExists
	}
	return nil
}

// Get retrieves a user from the database by their username.
func (r *sqliteUserRepository) Get(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.Get")
	defer span.End()

	var user models.User
	query := `SELECT username, id, password_hash, generation, created_at FROM users WHERE username = ?`
	err := r.db.GetContext(ctx, &user, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// UpdatePassword swaps the password hash and bumps the generation in one statement.
func (r *sqliteUserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.UpdatePassword")
	defer span.End()

	query := `UPDATE users SET password_hash = ?, generation = generation + 1 WHERE username = ?
		RETURNING username, id, password_hash, generation, created_at`
	return r.updateReturning(ctx, query, passwordHash, username)
}

// BumpGeneration increments the generation of the user.
func (r *sqliteUserRepository) BumpGeneration(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.BumpGeneration")
	defer span.End()

	query := `UPDATE users SET generation = generation + 1 WHERE username = ?
		RETURNING username, id, password_hash, generation, created_at`
	return r.updateReturning(ctx, query, username)
}

func (r *sqliteUserRepository) updateReturning(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// Delete removes the user row.
func (r *sqliteUserRepository) Delete(ctx context.Context, username string) error {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.Delete")
	defer span.End()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// List returns all usernames in lexical order.
func (r *sqliteUserRepository) List(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.List")
	defer span.End()

	names := []string{}
	if err := r.db.SelectContext(ctx, &names, `SELECT username FROM users ORDER BY username`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return names, nil
}

// Random picks a username uniformly at random.
func (r *sqliteUserRepository) Random(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.Random")
	defer span.End()

	var name string
	err := r.db.GetContext(ctx, &name, `SELECT username FROM users ORDER BY RANDOM() LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNoUsers
	}
	if err != nil {
		return "", fmt.Errorf("failed to get random user: %w", err)
	}
	return name, nil
}
