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

// SaveRefreshToken сохраняет новый refresh-токен.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.sqlite.SaveRefreshToken"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens(id, token_hash, identity_id, issued_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		token.ID.String(),
		token.TokenHash,
		token.IdentityID.String(),
		token.IssuedAt.UnixNano(),
		token.ExpiresAt.UnixNano(),
		token.Revoked,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshTokenByHash"

	var (
		token               models.RefreshToken
		id, identityID      string
		issuedAt, expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, identity_id, issued_at, expires_at, revoked
		FROM refresh_tokens
		WHERE token_hash = ?
	`, hash).Scan(&id, &token.TokenHash, &identityID, &issuedAt, &expiresAt, &token.Revoked)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if token.IdentityID, err = uuid.Parse(identityID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token.IssuedAt = time.Unix(0, issuedAt).UTC()
	token.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &token, nil
}

// RevokeRefreshToken отзывает токен, только если он ещё активен.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.sqlite.RevokeRefreshToken"

	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1
		WHERE token_hash = ? AND revoked = 0
	`, hash)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return true, nil
	}

	var revoked bool
	err = s.db.QueryRowContext(ctx, `SELECT revoked FROM refresh_tokens WHERE token_hash = ?`, hash).Scan(&revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// RevokeIdentityRefreshTokens отзывает все активные токены identity.
func (s *Storage) RevokeIdentityRefreshTokens(ctx context.Context, identityID uuid.UUID) (int64, error) {
	const op = "storage.sqlite.RevokeIdentityRefreshTokens"

	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1
		WHERE identity_id = ? AND revoked = 0
	`, identityID.String())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
