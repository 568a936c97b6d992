package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/conference-auth/internal/config"
	"github.com/pribylovaa/conference-auth/internal/models"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

func issueAccess(t *testing.T, f *fixture, id uuid.UUID) *models.TokenPair {
	t.Helper()

	f.tokens.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	pair, err := f.svc.Issue(context.Background(), id)
	require.NoError(t, err)

	return pair
}

func signClaims(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.Claims) string {
	t.Helper()

	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	return s
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"iss": "conference-auth",
		"iat": testStart.Unix(),
		"exp": testStart.Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := uuid.New()
	pair := issueAccess(t, f, id)

	got, err := f.svc.Validate(pair.Access.Value)
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.True(t, f.svc.IsTokenValid(pair.Access.Value))
}

func TestValidate_AllAlgorithms(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		f := newFixture(t, func(c *config.AuthConfig) { c.Algorithm = alg })
		id := uuid.New()
		pair := issueAccess(t, f, id)

		parsed, _, err := jwt.NewParser().ParseUnverified(pair.Access.Value, &jwt.RegisteredClaims{})
		require.NoError(t, err)
		require.Equal(t, alg, parsed.Method.Alg())

		got, err := f.svc.Validate(pair.Access.Value)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestValidate_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pair := issueAccess(t, f, uuid.New())

	f.clock.Set(pair.Access.ExpiresAt.Add(-time.Microsecond))
	_, err := f.svc.Validate(pair.Access.Value)
	require.NoError(t, err)

	f.clock.Set(pair.Access.ExpiresAt)
	_, err = f.svc.Validate(pair.Access.Value)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.False(t, f.svc.IsTokenValid(pair.Access.Value))

	f.clock.Advance(time.Hour)
	_, err = f.svc.Validate(pair.Access.Value)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidate_TamperedToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pair := issueAccess(t, f, uuid.New())
	parts := strings.Split(pair.Access.Value, ".")
	require.Len(t, parts, 3)

	replace := func(seg, i int, c byte) string {
		mutated := []byte(parts[seg])
		mutated[i] = c

		tampered := make([]string, 3)
		copy(tampered, parts)
		tampered[seg] = string(mutated)

		return strings.Join(tampered, ".")
	}

	for seg := range parts {
		for i := 0; i < len(parts[seg]); i++ {
			c := byte('A')
			if parts[seg][i] == 'A' {
				c = 'B'
			}

			_, err := f.svc.Validate(replace(seg, i, c))
			require.ErrorIs(t, err, ErrInvalidToken, "segment %d index %d", seg, i)
		}
	}
}

func TestValidate_SignatureLastCharAlphabet(t *testing.T) {
	t.Parallel()

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	f := newFixture(t)
	pair := issueAccess(t, f, uuid.New())
	parts := strings.Split(pair.Access.Value, ".")
	require.Len(t, parts, 3)

	sig := parts[2]
	last := sig[len(sig)-1]

	// Соседи по алфавиту отличаются только битами выравнивания
	// и при нестрогом декодировании дают тот же MAC.
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c == last {
			continue
		}

		tampered := parts[0] + "." + parts[1] + "." + sig[:len(sig)-1] + string(c)
		_, err := f.svc.Validate(tampered)
		require.ErrorIs(t, err, ErrInvalidToken, "last signature char %q -> %q", last, c)
	}

	_, err := f.svc.Validate(pair.Access.Value)
	require.NoError(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := uuid.NewString()

	without := func(key string) jwt.MapClaims {
		c := validClaims(sub)
		delete(c, key)
		return c
	}
	withValue := func(key string, v any) jwt.MapClaims {
		c := validClaims(sub)
		c[key] = v
		return c
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(sub)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"two segments", "a.b"},
		{"wrong secret", signClaims(t, jwt.SigningMethodHS256, "other-secret", validClaims(sub))},
		{"other hmac algorithm", signClaims(t, jwt.SigningMethodHS512, "unit-secret", validClaims(sub))},
		{"alg none", noneToken},
		{"wrong issuer", signClaims(t, jwt.SigningMethodHS256, "unit-secret", withValue("iss", "someone-else"))},
		{"missing issuer", signClaims(t, jwt.SigningMethodHS256, "unit-secret", without("iss"))},
		{"missing sub", signClaims(t, jwt.SigningMethodHS256, "unit-secret", without("sub"))},
		{"missing iat", signClaims(t, jwt.SigningMethodHS256, "unit-secret", without("iat"))},
		{"missing exp", signClaims(t, jwt.SigningMethodHS256, "unit-secret", without("exp"))},
		{"non uuid sub", signClaims(t, jwt.SigningMethodHS256, "unit-secret", withValue("sub", "alice"))},
		{"numeric sub", signClaims(t, jwt.SigningMethodHS256, "unit-secret", withValue("sub", 42))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Validate(tc.token)
			require.ErrorIs(t, err, ErrInvalidToken)
			require.False(t, f.svc.IsTokenValid(tc.token))
		})
	}

	// Контроль: те же claims с правильным ключом проходят.
	got, err := f.svc.Validate(signClaims(t, jwt.SigningMethodHS256, "unit-secret", validClaims(sub)))
	require.NoError(t, err)
	require.Equal(t, sub, got.String())
}

func TestExtractUser(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		pair := issueAccess(t, f, id)

		f.identities.EXPECT().IdentityByID(gomock.Any(), id).
			Return(&models.Identity{ID: id, Username: "alice", PasswordHash: "h"}, nil)

		got, err := f.svc.ExtractUser(context.Background(), pair.Access.Value)
		require.NoError(t, err)
		require.Equal(t, &models.IdentityDescriptor{ID: id, Username: "alice"}, got)
	})

	t.Run("identity missing is repository failure", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		pair := issueAccess(t, f, id)

		f.identities.EXPECT().IdentityByID(gomock.Any(), id).Return(nil, storage.ErrNotFound)

		_, err := f.svc.ExtractUser(context.Background(), pair.Access.Value)
		require.Equal(t, KindRepository, KindOf(err))
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("expired token skips lookup", func(t *testing.T) {
		f := newFixture(t)
		pair := issueAccess(t, f, uuid.New())
		f.clock.Set(pair.Access.ExpiresAt)

		_, err := f.svc.ExtractUser(context.Background(), pair.Access.Value)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("invalid token skips lookup", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.ExtractUser(context.Background(), "bogus")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
