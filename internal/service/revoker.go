package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/models"
	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
	"github.com/pribylovaa/conference-auth/internal/pkg/redact"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// Revoker отзывает refresh-токены.
type Revoker struct {
	tokens  storage.RefreshTokenStorage
	clock   clock.Clock
	metrics *metrics.Metrics
}

// RevokeRefreshToken отзывает refresh-токен по значению.
// Неизвестное значение - ErrInvalidToken; истёкший или уже отозванный токен
// не меняется и ошибкой не считается.
func (r *Revoker) RevokeRefreshToken(ctx context.Context, value string) error {
	const op = "service.revoker.RevokeRefreshToken"

	ctx, lg := logctx.With(ctx,
		slog.String("op", op),
		slog.String("token", redact.Token(value)),
	)

	rec, err := r.lookup(ctx, value)
	if err != nil {
		r.metrics.Revoke(resultOf(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if rec.IsExpired(r.clock.Now()) || rec.Revoked {
		r.metrics.Revoke(metrics.ResultNoop)
		lg.Debug("refresh_revoke_noop", slog.Bool("revoked", rec.Revoked))

		return nil
	}

	won, err := r.markRevoked(ctx, rec.TokenHash)
	if err != nil {
		r.metrics.Revoke(resultOf(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !won {
		// Параллельный отзыв успел первым - результат тот же.
		r.metrics.Revoke(metrics.ResultNoop)
		return nil
	}

	r.metrics.Revoke(metrics.ResultOK)
	lg.Info("refresh_token_revoked", slog.String("identity_id", rec.IdentityID.String()))

	return nil
}

// lookup находит запись по значению токена.
func (r *Revoker) lookup(ctx context.Context, value string) (*models.RefreshToken, error) {
	const op = "service.revoker.lookup"

	if value == "" {
		return nil, ErrInvalidToken
	}

	rec, err := r.tokens.RefreshTokenByHash(ctx, storage.HashToken(value))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}

		return nil, repoError(op, err)
	}

	return rec, nil
}

// markRevoked - условный перевод revoked false -> true.
// false без ошибки означает, что токен уже был отозван кем-то другим.
func (r *Revoker) markRevoked(ctx context.Context, hash string) (bool, error) {
	const op = "service.revoker.markRevoked"

	won, err := r.tokens.RevokeRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrInvalidToken
		}

		return false, repoError(op, err)
	}

	return won, nil
}

// resultOf - метка метрики для ошибки сервиса.
func resultOf(err error) string {
	switch KindOf(err) {
	case KindInvalidToken:
		return metrics.ResultInvalid
	case KindTokenExpired:
		return metrics.ResultExpired
	case KindTokenRevoked:
		return metrics.ResultRevoked
	default:
		return metrics.ResultError
	}
}
