package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/models"
	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
	"github.com/pribylovaa/conference-auth/internal/pkg/redact"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

// maxPasswordBytes - предел bcrypt.
const maxPasswordBytes = 72

// Authenticator - вход, выход и регистрация.
type Authenticator struct {
	identities storage.IdentityStorage
	hasher     PasswordHasher
	clock      clock.Clock
	issuer     *Issuer
	revoker    *Revoker
	metrics    *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// Login проверяет учётные данные и выпускает пару токенов.
// Для неизвестного имени всё равно выполняется одна проверка хэша,
// чтобы обе ветки отказа стоили одинаково.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*models.AuthTokens, error) {
	const op = "service.auth.Login"

	// Имя нормализуется так же, как в Register.
	username = strings.TrimSpace(username)

	ctx, lg := logctx.With(ctx,
		slog.String("op", op),
		slog.String("username", redact.Username(username)),
	)

	identity, err := a.identities.IdentityByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.hasher.Verify(a.dummy(), password)
			a.metrics.Login(metrics.ResultInvalid)
			lg.Info("login_unknown_username")

			return nil, fmt.Errorf("%s: %w", op, ErrInvalidUsername)
		}

		a.metrics.Login(metrics.ResultError)
		lg.Error("login_lookup_failed", slog.String("err", err.Error()))

		return nil, repoError(op, err)
	}

	if !a.hasher.Verify(identity.PasswordHash, password) {
		a.metrics.Login(metrics.ResultInvalid)
		lg.Info("login_invalid_password")

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPassword)
	}

	tokens, err := a.issuer.IssueTokens(ctx, identity.ID)
	if err != nil {
		a.metrics.Login(metrics.ResultError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.metrics.Login(metrics.ResultOK)
	lg.Info("login_succeeded", slog.String("identity_id", identity.ID.String()))

	return tokens, nil
}

// Logout отзывает refresh-токен.
func (a *Authenticator) Logout(ctx context.Context, refresh string) error {
	const op = "service.auth.Logout"

	if err := a.revoker.RevokeRefreshToken(ctx, refresh); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Register создаёт identity. Имя пользователя обрезается по краям.
func (a *Authenticator) Register(ctx context.Context, username, password string) (*models.IdentityDescriptor, error) {
	const op = "service.auth.Register"

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%s: %w: username and password are required", op, ErrInvalidArgument)
	}

	if len(password) > maxPasswordBytes {
		return nil, fmt.Errorf("%s: %w: password is too long", op, ErrInvalidArgument)
	}

	ctx, lg := logctx.With(ctx,
		slog.String("op", op),
		slog.String("username", redact.Username(username)),
	)

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%s: hash password: %w", op, err)
	}

	identity := &models.Identity{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    a.clock.Now().UTC(),
	}

	if err := a.identities.SaveIdentity(ctx, identity); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		lg.Error("register_save_failed", slog.String("err", err.Error()))

		return nil, repoError(op, err)
	}

	lg.Info("identity_registered", slog.String("identity_id", identity.ID.String()))

	return identity.Descriptor(), nil
}

// dummy - хэш для проверки при неизвестном имени пользователя, вычисляется один раз.
func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			a.dummyHash = h
		}
	})

	return a.dummyHash
}
