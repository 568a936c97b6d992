package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/models"
	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
	"github.com/pribylovaa/conference-auth/internal/pkg/redact"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// Refresher обменивает refresh-токен на новую пару (одноразовое использование).
type Refresher struct {
	tokens  storage.RefreshTokenStorage
	clock   clock.Clock
	issuer  *Issuer
	revoker *Revoker
	// revokeFamilyOnReuse - при повторном предъявлении отозванного токена
	// отзывать все активные refresh-токены identity.
	revokeFamilyOnReuse bool
	metrics             *metrics.Metrics
}

// RefreshTokens отзывает предъявленный refresh-токен и выпускает новую пару.
//
// Порядок: поиск -> срок -> отозван ли -> CAS-отзыв -> выпуск.
// Из параллельных вызовов с одним токеном успешен ровно один,
// остальные получают ErrTokenRevoked. Сбой после отзыва оставляет
// токен отозванным без замены.
func (r *Refresher) RefreshTokens(ctx context.Context, value string) (*models.AuthTokens, error) {
	const op = "service.refresher.RefreshTokens"

	ctx, lg := logctx.With(ctx,
		slog.String("op", op),
		slog.String("token", redact.Token(value)),
	)

	rec, err := r.revoker.lookup(ctx, value)
	if err != nil {
		r.metrics.Refresh(resultOf(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rec.IsExpired(r.clock.Now()) {
		r.metrics.Refresh(metrics.ResultExpired)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if rec.Revoked {
		r.metrics.Refresh(metrics.ResultReused)
		lg.Warn("refresh_reuse_detected", slog.String("identity_id", rec.IdentityID.String()))

		if r.revokeFamilyOnReuse {
			r.revokeFamily(ctx, rec)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	won, err := r.revoker.markRevoked(ctx, rec.TokenHash)
	if err != nil {
		r.metrics.Refresh(resultOf(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !won {
		r.metrics.Refresh(metrics.ResultRaceLost)
		lg.Info("refresh_race_lost", slog.String("identity_id", rec.IdentityID.String()))

		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	tokens, err := r.issuer.IssueTokens(ctx, rec.IdentityID)
	if err != nil {
		r.metrics.Refresh(metrics.ResultError)
		lg.Error("refresh_issue_failed_after_revoke",
			slog.String("identity_id", rec.IdentityID.String()),
			slog.String("err", err.Error()),
		)

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.metrics.Refresh(metrics.ResultOK)
	lg.Debug("refresh_rotated", slog.String("identity_id", rec.IdentityID.String()))

	return tokens, nil
}

// revokeFamily отзывает все активные refresh-токены identity.
// Ошибка только логируется: клиент в любом случае получает ErrTokenRevoked.
func (r *Refresher) revokeFamily(ctx context.Context, rec *models.RefreshToken) {
	n, err := r.tokens.RevokeIdentityRefreshTokens(ctx, rec.IdentityID)
	if err != nil {
		logctx.From(ctx).Error("refresh_family_revoke_failed",
			slog.String("identity_id", rec.IdentityID.String()),
			slog.String("err", err.Error()),
		)

		return
	}

	r.metrics.FamilyRevoked(n)
	logctx.From(ctx).Warn("refresh_family_revoked",
		slog.String("identity_id", rec.IdentityID.String()),
		slog.Int64("count", n),
	)
}
