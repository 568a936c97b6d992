package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/conference-auth/internal/config"
	"github.com/pribylovaa/conference-auth/internal/models"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

const presented = "presented-refresh-token-value"

func activeRecord(id uuid.UUID) *models.RefreshToken {
	return &models.RefreshToken{
		ID:         uuid.New(),
		TokenHash:  storage.HashToken(presented),
		IdentityID: id,
		IssuedAt:   testStart.Add(-time.Hour),
		ExpiresAt:  testStart.Add(time.Hour),
	}
}

func TestRefreshTokens_Rotates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := uuid.New()
	hash := storage.HashToken(presented)

	gomock.InOrder(
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(activeRecord(id), nil),
		f.tokens.EXPECT().RevokeRefreshToken(gomock.Any(), hash).Return(true, nil),
		f.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *models.RefreshToken) error {
				require.Equal(t, id, rec.IdentityID)
				require.NotEqual(t, hash, rec.TokenHash)
				return nil
			}),
	)

	tokens, err := f.svc.RefreshTokens(context.Background(), presented)
	require.NoError(t, err)
	require.Equal(t, id, tokens.IdentityID)
	require.NotEqual(t, presented, tokens.RefreshToken)

	got, err := f.svc.Validate(tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestRefreshTokens_Rejections(t *testing.T) {
	t.Parallel()

	hash := storage.HashToken(presented)

	t.Run("empty value", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.RefreshTokens(context.Background(), "")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown value", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(nil, storage.ErrNotFound)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired at exact boundary", func(t *testing.T) {
		f := newFixture(t)
		rec := activeRecord(uuid.New())
		rec.ExpiresAt = testStart
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(rec, nil)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("revoked token is not revoked again", func(t *testing.T) {
		f := newFixture(t)
		rec := activeRecord(uuid.New())
		rec.Revoked = true
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(rec, nil)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(activeRecord(uuid.New()), nil)
		f.tokens.EXPECT().RevokeRefreshToken(gomock.Any(), hash).Return(false, nil)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("record vanished before revoke", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(activeRecord(uuid.New()), nil)
		f.tokens.EXPECT().RevokeRefreshToken(gomock.Any(), hash).Return(false, storage.ErrNotFound)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshTokens_RepositoryFailures(t *testing.T) {
	t.Parallel()

	hash := storage.HashToken(presented)
	boom := errors.New("connection refused")

	t.Run("lookup", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(nil, boom)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.Equal(t, KindRepository, KindOf(err))
		require.ErrorIs(t, err, boom)
	})

	t.Run("revoke", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(activeRecord(uuid.New()), nil)
		f.tokens.EXPECT().RevokeRefreshToken(gomock.Any(), hash).Return(false, boom)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.Equal(t, KindRepository, KindOf(err))
	})

	t.Run("issue after revoke", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(activeRecord(uuid.New()), nil)
		f.tokens.EXPECT().RevokeRefreshToken(gomock.Any(), hash).Return(true, nil)
		f.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(boom)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.Equal(t, KindRepository, KindOf(err))
	})
}

func TestRefreshTokens_ReuseFamilyPolicy(t *testing.T) {
	t.Parallel()

	hash := storage.HashToken(presented)

	t.Run("disabled by default", func(t *testing.T) {
		f := newFixture(t)
		rec := activeRecord(uuid.New())
		rec.Revoked = true
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(rec, nil)
		f.tokens.EXPECT().RevokeIdentityRefreshTokens(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, func(c *config.AuthConfig) { c.RevokeFamilyOnReuse = true })
		rec := activeRecord(uuid.New())
		rec.Revoked = true
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(rec, nil)
		f.tokens.EXPECT().RevokeIdentityRefreshTokens(gomock.Any(), rec.IdentityID).Return(int64(3), nil)

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("family revoke failure keeps revoked error", func(t *testing.T) {
		f := newFixture(t, func(c *config.AuthConfig) { c.RevokeFamilyOnReuse = true })
		rec := activeRecord(uuid.New())
		rec.Revoked = true
		f.tokens.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(rec, nil)
		f.tokens.EXPECT().RevokeIdentityRefreshTokens(gomock.Any(), rec.IdentityID).
			Return(int64(0), errors.New("timeout"))

		_, err := f.svc.RefreshTokens(context.Background(), presented)
		require.ErrorIs(t, err, ErrTokenRevoked)
		require.NotEqual(t, KindRepository, KindOf(err))
	})
}
