package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
)

func (s *PostgresStore) CreateUser(parentCtx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
			INSERT INTO users (auth_id, username, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING created_at, updated_at
	`

	if user.AuthID == uuid.Nil {
		user.AuthID = uuid.New()
	}

	err := s.db.QueryRow(
		ctx,
		query,
		user.AuthID,
		user.Username,
		user.Email,
		user.PasswordHash,
		time.Now().UTC(),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return translatePgError(ctx, "failed to create user", err)
	}

	return nil
}

func (s *PostgresStore) GetUserByID(parentCtx context.Context, id uuid.UUID) (*models.User, error) {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		SELECT auth_id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE auth_id = $1
	`

	return s.scanUser(ctx, query, id)
}

func (s *PostgresStore) GetUserByEmail(parentCtx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		SELECT auth_id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	return s.scanUser(ctx, query, email)
}

// UpdateUser saves username and email; updated_at is set by the store
func (s *PostgresStore) UpdateUser(parentCtx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	query := `
		UPDATE users
		SET username = $2, email = $3, updated_at = $4
		WHERE auth_id = $1
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRow(
		ctx,
		query,
		user.AuthID,
		user.Username,
		user.Email,
		time.Now().UTC(),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return translatePgError(ctx, "failed to update user", err)
	}

	return nil
}

// DeleteUser removes the account. Cards keep their author snapshot.
func (s *PostgresStore) DeleteUser(parentCtx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(parentCtx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE auth_id = $1`, id)
	if err != nil {
		return translatePgError(ctx, "failed to delete user", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete user: %w", common.ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) scanUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}

	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.AuthID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, translatePgError(ctx, "failed to get user", err)
	}

	return user, nil
}
