package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/models"
	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

const (
	refreshTokenBytes    = 32
	refreshInsertRetries = 5
)

var errRefreshCollision = errors.New("refresh token collision retries exhausted")

// Issuer выпускает пары access/refresh.
type Issuer struct {
	tokens     storage.RefreshTokenStorage
	clock      clock.Clock
	keys       *signingKeys
	accessTTL  time.Duration
	refreshTTL time.Duration
	metrics    *metrics.Metrics
}

// Issue выпускает пару токенов для identityID.
// Access-токен не сохраняется; refresh-токен сохраняется (по хэшу) до возврата.
// Обе записи получают один и тот же issued_at, усечённый до секунды.
func (i *Issuer) Issue(ctx context.Context, identityID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.issuer.Issue"

	issuedAt := i.clock.Now().UTC().Truncate(time.Second)

	access, err := i.signAccess(identityID, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := i.storeRefresh(ctx, identityID, issuedAt)
	if err != nil {
		logctx.From(ctx).Error("refresh_token_store_failed",
			slog.String("op", op),
			slog.String("identity_id", identityID.String()),
			slog.String("err", err.Error()),
		)

		return nil, repoError(op, err)
	}

	i.metrics.TokenPairIssued()

	return &models.TokenPair{Access: *access, Refresh: *refresh}, nil
}

// IssueTokens - Issue, сведённый к DTO для транспорта.
func (i *Issuer) IssueTokens(ctx context.Context, identityID uuid.UUID) (*models.AuthTokens, error) {
	pair, err := i.Issue(ctx, identityID)
	if err != nil {
		return nil, err
	}

	return pair.AuthTokens(), nil
}

func (i *Issuer) signAccess(identityID uuid.UUID, issuedAt time.Time) (*models.Token, error) {
	id := uuid.New()
	expiresAt := issuedAt.Add(i.accessTTL)

	claims := jwt.RegisteredClaims{
		ID:        id.String(),
		Subject:   identityID.String(),
		Issuer:    i.keys.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(i.keys.method, claims).SignedString(i.keys.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &models.Token{
		ID:         id,
		IdentityID: identityID,
		Value:      signed,
		Kind:       models.TokenAccess,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// storeRefresh генерирует и сохраняет refresh-токен.
// Коллизия хэша (ErrAlreadyExists) повторяется не более refreshInsertRetries раз.
func (i *Issuer) storeRefresh(ctx context.Context, identityID uuid.UUID, issuedAt time.Time) (*models.Token, error) {
	expiresAt := issuedAt.Add(i.refreshTTL)

	for attempt := 0; attempt < refreshInsertRetries; attempt++ {
		plain, err := generateRefreshToken()
		if err != nil {
			return nil, err
		}

		rec := &models.RefreshToken{
			ID:         uuid.New(),
			TokenHash:  storage.HashToken(plain),
			IdentityID: identityID,
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt,
		}

		err = i.tokens.SaveRefreshToken(ctx, rec)
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return &models.Token{
			ID:         rec.ID,
			IdentityID: identityID,
			Value:      plain,
			Kind:       models.TokenRefresh,
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt,
		}, nil
	}

	return nil, errRefreshCollision
}

func generateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
