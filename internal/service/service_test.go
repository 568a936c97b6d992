package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/config"
	"github.com/pribylovaa/conference-auth/internal/pkg/passwd"
	"github.com/pribylovaa/conference-auth/mocks"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		Algorithm:       "HS256",
		Issuer:          "conference-auth",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}
}

type fixture struct {
	svc        *Service
	identities *mocks.MockIdentityStorage
	tokens     *mocks.MockRefreshTokenStorage
	clock      *clock.Fixed
	hasher     *spyHasher
}

func newFixture(t *testing.T, mutate ...func(*config.AuthConfig)) *fixture {
	t.Helper()

	cfg := testCfg()
	for _, m := range mutate {
		m(&cfg)
	}

	ctrl := gomock.NewController(t)
	f := &fixture{
		identities: mocks.NewMockIdentityStorage(ctrl),
		tokens:     mocks.NewMockRefreshTokenStorage(ctrl),
		clock:      clock.NewFixed(testStart),
		hasher:     &spyHasher{inner: passwd.New(bcrypt.MinCost)},
	}

	svc, err := New(cfg, Deps{
		Identities: f.identities,
		Tokens:     f.tokens,
		Hasher:     f.hasher,
		Clock:      f.clock,
	})
	require.NoError(t, err)
	f.svc = svc

	return f
}

// spyHasher считает вызовы Verify.
type spyHasher struct {
	inner    *passwd.Bcrypt
	verifies int
}

func (s *spyHasher) Hash(password string) (string, error) { return s.inner.Hash(password) }

func (s *spyHasher) Verify(hash, password string) bool {
	s.verifies++
	return s.inner.Verify(hash, password)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	deps := Deps{
		Identities: mocks.NewMockIdentityStorage(ctrl),
		Tokens:     mocks.NewMockRefreshTokenStorage(ctrl),
		Hasher:     passwd.New(bcrypt.MinCost),
	}

	cases := []struct {
		name   string
		mutate func(*config.AuthConfig)
		deps   Deps
	}{
		{"unsupported algorithm", func(c *config.AuthConfig) { c.Algorithm = "RS256" }, deps},
		{"none algorithm", func(c *config.AuthConfig) { c.Algorithm = "none" }, deps},
		{"empty secret", func(c *config.AuthConfig) { c.JWTSecret = "" }, deps},
		{"empty issuer", func(c *config.AuthConfig) { c.Issuer = "" }, deps},
		{"zero access ttl", func(c *config.AuthConfig) { c.AccessTokenTTL = 0 }, deps},
		{"negative refresh ttl", func(c *config.AuthConfig) { c.RefreshTokenTTL = -time.Second }, deps},
		{"missing hasher", func(*config.AuthConfig) {}, Deps{Identities: deps.Identities, Tokens: deps.Tokens}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testCfg()
			tc.mutate(&cfg)

			_, err := New(cfg, tc.deps)
			require.Error(t, err)
		})
	}

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		cfg := testCfg()
		cfg.Algorithm = alg

		svc, err := New(cfg, deps)
		require.NoError(t, err, alg)
		require.NotNil(t, svc)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("other"), KindUnknown},
		{ErrInvalidUsername, KindInvalidUsername},
		{fmt.Errorf("op: %w", ErrInvalidPassword), KindInvalidPassword},
		{fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrInvalidToken)), KindInvalidToken},
		{ErrTokenExpired, KindTokenExpired},
		{ErrTokenRevoked, KindTokenRevoked},
		{repoError("op", errors.New("db down")), KindRepository},
		{ErrUsernameTaken, KindUsernameTaken},
		{ErrInvalidArgument, KindInvalidArgument},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestRepoError_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := repoError("service.test", cause)

	require.ErrorIs(t, err, ErrRepository)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "service.test")
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "token_revoked", KindTokenRevoked.String())
	require.Equal(t, "repository", KindRepository.String())
	require.Equal(t, "unknown", ErrorKind(100).String())
	require.Equal(t, "unknown", ErrorKind(-1).String())
}
