package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/conference-auth/internal/models"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// SaveIdentity создаёт identity.
func (s *Storage) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	const op = "storage.postgres.SaveIdentity"

	query := `
		INSERT INTO identities(id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.Exec(ctx, query,
		identity.ID,
		identity.Username,
		identity.PasswordHash,
		identity.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IdentityByUsername находит identity по имени пользователя.
func (s *Storage) IdentityByUsername(ctx context.Context, username string) (*models.Identity, error) {
	const op = "storage.postgres.IdentityByUsername"

	query := `
		SELECT id, username, password_hash, created_at
		FROM identities
		WHERE username = $1
	`

	return s.scanIdentity(ctx, op, query, username)
}

// IdentityByID находит identity по ID.
func (s *Storage) IdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	const op = "storage.postgres.IdentityByID"

	query := `
		SELECT id, username, password_hash, created_at
		FROM identities
		WHERE id = $1
	`

	return s.scanIdentity(ctx, op, query, id)
}

func (s *Storage) scanIdentity(ctx context.Context, op, query string, arg any) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&identity.ID,
		&identity.Username,
		&identity.PasswordHash,
		&identity.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity.CreatedAt = identity.CreatedAt.UTC()
	return &identity, nil
}
