package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/conference-auth/internal/models"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// SaveIdentity создаёт identity.
func (s *Storage) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	const op = "storage.sqlite.SaveIdentity"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities(id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`,
		identity.ID.String(),
		identity.Username,
		identity.PasswordHash,
		identity.CreatedAt.UnixNano(),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IdentityByUsername находит identity по имени пользователя.
func (s *Storage) IdentityByUsername(ctx context.Context, username string) (*models.Identity, error) {
	const op = "storage.sqlite.IdentityByUsername"

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM identities
		WHERE username = ?
	`, username)

	return scanIdentity(op, row)
}

// IdentityByID находит identity по ID.
func (s *Storage) IdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	const op = "storage.sqlite.IdentityByID"

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM identities
		WHERE id = ?
	`, id.String())

	return scanIdentity(op, row)
}

func scanIdentity(op string, row *sql.Row) (*models.Identity, error) {
	var (
		identity  models.Identity
		id        string
		createdAt int64
	)

	if err := row.Scan(&id, &identity.Username, &identity.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity.ID = parsed
	identity.CreatedAt = time.Unix(0, createdAt).UTC()
	return &identity, nil
}
