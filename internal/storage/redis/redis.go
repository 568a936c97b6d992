// redis - хранилище refresh-токенов в Redis.
//
// Запись хранится как Redis Hash по ключу <prefix>rt:<hash> с полями
// id, iid (identity), iat и exp (unix-наносекунды), rev (0/1).
// Множество <prefix>iid:<identity> индексирует хэши токенов identity.
// Отзыв выполняется Lua-скриптом, поэтому проверка и запись атомарны.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/conference-auth/internal/models"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

const defaultPrefix = "auth:"

// Options - настройки хранилища.
type Options struct {
	// Prefix - пространство ключей; пустое значение означает "auth:".
	Prefix string
	// Retention - сколько хранить запись после истечения токена.
	// Ноль: записи живут без TTL. После удаления запись неотличима
	// от неизвестного токена (storage.ErrNotFound).
	Retention time.Duration
}

type Storage struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
func New(ctx context.Context, redisURL string, opts Options) (*Storage, error) {
	const op = "storage.redis.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewFromClient(rdb, opts), nil
}

// NewFromClient оборачивает готовый клиент.
func NewFromClient(rdb redis.UniversalClient, opts Options) *Storage {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Storage{rdb: rdb, prefix: prefix, retention: opts.Retention}
}

// Close закрывает клиент Redis.
func (s *Storage) Close() {
	_ = s.rdb.Close()
}

func (s *Storage) tokenKey(hash string) string { return s.prefix + "rt:" + hash }

func (s *Storage) identityKey(id uuid.UUID) string { return s.prefix + "iid:" + id.String() }

// KEYS[1] - ключ токена, KEYS[2] - множество токенов identity.
// ARGV: id, iid, iat, exp, rev, hash, ttl_ms.
var saveLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "iid", ARGV[2], "iat", ARGV[3], "exp", ARGV[4], "rev", ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
local ttl = tonumber(ARGV[7])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// -1 - нет записи, 0 - уже отозван, 1 - отозван сейчас.
var revokeLua = redis.NewScript(`
local rev = redis.call("HGET", KEYS[1], "rev")
if not rev then
  return -1
end
if rev == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "rev", "1")
return 1
`)

// SaveRefreshToken сохраняет новый refresh-токен.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.redis.SaveRefreshToken"

	var ttl time.Duration
	if s.retention > 0 {
		ttl = time.Until(token.ExpiresAt) + s.retention
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}

	res, err := saveLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(token.TokenHash), s.identityKey(token.IdentityID)},
		token.ID.String(),
		token.IdentityID.String(),
		strconv.FormatInt(token.IssuedAt.UnixNano(), 10),
		strconv.FormatInt(token.ExpiresAt.UnixNano(), 10),
		boolTo01(token.Revoked),
		token.TokenHash,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.redis.RefreshTokenByHash"

	m, err := s.rdb.HGetAll(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	token, err := decode(hash, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// RevokeRefreshToken отзывает токен, только если он ещё активен.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.redis.RevokeRefreshToken"

	res, err := revokeLua.Run(ctx, s.rdb, []string{s.tokenKey(hash)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
}

// RevokeIdentityRefreshTokens отзывает все активные токены identity.
// Хэши, чьи записи уже вытеснены по TTL, удаляются из индекса.
func (s *Storage) RevokeIdentityRefreshTokens(ctx context.Context, identityID uuid.UUID) (int64, error) {
	const op = "storage.redis.RevokeIdentityRefreshTokens"

	setKey := s.identityKey(identityID)
	hashes, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var revoked int64
	for _, hash := range hashes {
		ok, err := s.RevokeRefreshToken(ctx, hash)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			_ = s.rdb.SRem(ctx, setKey, hash).Err()
		case err != nil:
			return revoked, fmt.Errorf("%s: %w", op, err)
		case ok:
			revoked++
		}
	}

	return revoked, nil
}

func decode(hash string, m map[string]string) (*models.RefreshToken, error) {
	id, err := uuid.Parse(m["id"])
	if err != nil {
		return nil, err
	}

	identityID, err := uuid.Parse(m["iid"])
	if err != nil {
		return nil, err
	}

	iat, err := strconv.ParseInt(m["iat"], 10, 64)
	if err != nil {
		return nil, err
	}

	exp, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, err
	}

	return &models.RefreshToken{
		ID:         id,
		TokenHash:  hash,
		IdentityID: identityID,
		IssuedAt:   time.Unix(0, iat).UTC(),
		ExpiresAt:  time.Unix(0, exp).UTC(),
		Revoked:    m["rev"] == "1",
	}, nil
}

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

var _ storage.RefreshTokenStorage = (*Storage)(nil)
