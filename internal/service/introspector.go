package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/models"
	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// Introspector проверяет access-токены без обращения к хранилищу refresh-токенов.
type Introspector struct {
	identities storage.IdentityStorage
	clock      clock.Clock
	keys       *signingKeys
	parser     *jwt.Parser
	metrics    *metrics.Metrics
}

func newIntrospector(identities storage.IdentityStorage, clk clock.Clock, keys *signingKeys, m *metrics.Metrics) *Introspector {
	return &Introspector{
		identities: identities,
		clock:      clk,
		keys:       keys,
		// Сроки проверяются вручную по clock, без leeway.
		// Строгий base64: ненулевые биты выравнивания в последнем символе
		// сегмента делают токен невалидным.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{keys.method.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
		metrics: m,
	}
}

// Validate проверяет подпись, алгоритм, issuer, обязательные claims и срок
// access-токена и возвращает identity ID из sub.
func (i *Introspector) Validate(access string) (uuid.UUID, error) {
	id, err := i.validate(access)
	switch {
	case err == nil:
		i.metrics.Introspect(metrics.ResultOK)
	case errors.Is(err, ErrTokenExpired):
		i.metrics.Introspect(metrics.ResultExpired)
	default:
		i.metrics.Introspect(metrics.ResultInvalid)
	}

	return id, err
}

func (i *Introspector) validate(access string) (uuid.UUID, error) {
	if access == "" {
		return uuid.Nil, ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := i.parser.ParseWithClaims(access, &claims, func(*jwt.Token) (any, error) {
		return i.keys.secret, nil
	})
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	if claims.Issuer != i.keys.issuer {
		return uuid.Nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	if !i.clock.Now().Before(claims.ExpiresAt.Time) {
		return uuid.Nil, ErrTokenExpired
	}

	return id, nil
}

// IsTokenValid - true, только если Validate проходит без ошибки.
func (i *Introspector) IsTokenValid(access string) bool {
	_, err := i.Validate(access)
	return err == nil
}

// ExtractUser проверяет токен и находит identity по sub.
// Отсутствие identity для валидного токена - рассогласование хранилища (ErrRepository).
func (i *Introspector) ExtractUser(ctx context.Context, access string) (*models.IdentityDescriptor, error) {
	const op = "service.introspector.ExtractUser"

	id, err := i.Validate(access)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity, err := i.identities.IdentityByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logctx.From(ctx).Error("identity_missing_for_valid_token",
				slog.String("op", op),
				slog.String("identity_id", id.String()),
			)
		}

		return nil, repoError(op, err)
	}

	return identity.Descriptor(), nil
}
