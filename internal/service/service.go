// service содержит жизненный цикл токенов: выпуск пары access/refresh,
// проверку access-токена, ротацию и отзыв refresh-токена, а также
// вход/выход поверх хранилища identity.
//
// Компоненты (Issuer, Introspector, Revoker, Refresher, Authenticator)
// собираются один раз в New и не хранят состояние запроса, поэтому
// безопасны для конкурентного использования при потокобезопасных хранилищах.
package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/config"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/storage"
)

var (
	// ErrInvalidUsername - identity с таким именем нет.
	// Транспорт: HTTP 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidPassword - пароль не совпал с хэшем.
	// Транспорт: HTTP 400.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidToken - refresh-токена нет в хранилище, либо access-токен
	// не прошёл проверку подписи/issuer/обязательных claims.
	// Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired - токен найден/корректен, но now >= expires_at.
	// Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked - refresh-токен уже отозван (сигнал повторного использования).
	// Транспорт: HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrRepository - сбой хранилища; исходная ошибка доступна через errors.Is/As.
	// Транспорт: HTTP 500.
	ErrRepository = errors.New("repository failure")

	// ErrUsernameTaken - имя пользователя уже занято.
	// Транспорт: HTTP 409.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidArgument - пустые или недопустимые входные данные регистрации.
	// Транспорт: HTTP 400.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorKind - закрытый перечень видов ошибок сервиса.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidUsername
	KindInvalidPassword
	KindInvalidToken
	KindTokenExpired
	KindTokenRevoked
	KindRepository
	KindUsernameTaken
	KindInvalidArgument
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindInvalidUsername: "invalid_username",
	KindInvalidPassword: "invalid_password",
	KindInvalidToken:    "invalid_token",
	KindTokenExpired:    "token_expired",
	KindTokenRevoked:    "token_revoked",
	KindRepository:      "repository",
	KindUsernameTaken:   "username_taken",
	KindInvalidArgument: "invalid_argument",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}

	return kindNames[k]
}

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidUsername, KindInvalidUsername},
	{ErrInvalidPassword, KindInvalidPassword},
	{ErrInvalidToken, KindInvalidToken},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenRevoked, KindTokenRevoked},
	{ErrUsernameTaken, KindUsernameTaken},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrRepository, KindRepository},
}

// KindOf классифицирует ошибку, возвращённую сервисом.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	for _, s := range kindBySentinel {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}

	return KindUnknown
}

// repoError помечает ошибку хранилища как ErrRepository, сохраняя исходную.
func repoError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRepository, err)
}

// PasswordHasher - хэширование и проверка паролей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Deps - внешние зависимости сервиса.
type Deps struct {
	Identities storage.IdentityStorage
	Tokens     storage.RefreshTokenStorage
	Hasher     PasswordHasher
	// Clock по умолчанию clock.System.
	Clock clock.Clock
	// Metrics может быть nil.
	Metrics *metrics.Metrics
}

// Service объединяет компоненты жизненного цикла токенов.
type Service struct {
	*Issuer
	*Introspector
	*Revoker
	*Refresher
	*Authenticator
}

// New собирает сервис. Конфигурация копируется и дальше не меняется.
func New(cfg config.AuthConfig, deps Deps) (*Service, error) {
	const op = "service.New"

	if deps.Identities == nil || deps.Tokens == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%s: identities, tokens and hasher are required", op)
	}

	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	keys, err := newSigningKeys(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	issuer := &Issuer{
		tokens:     deps.Tokens,
		clock:      deps.Clock,
		keys:       keys,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		metrics:    deps.Metrics,
	}
	revoker := &Revoker{
		tokens:  deps.Tokens,
		clock:   deps.Clock,
		metrics: deps.Metrics,
	}

	return &Service{
		Issuer:       issuer,
		Introspector: newIntrospector(deps.Identities, deps.Clock, keys, deps.Metrics),
		Revoker:      revoker,
		Refresher: &Refresher{
			tokens:              deps.Tokens,
			clock:               deps.Clock,
			issuer:              issuer,
			revoker:             revoker,
			revokeFamilyOnReuse: cfg.RevokeFamilyOnReuse,
			metrics:             deps.Metrics,
		},
		Authenticator: &Authenticator{
			identities: deps.Identities,
			hasher:     deps.Hasher,
			clock:      deps.Clock,
			issuer:     issuer,
			revoker:    revoker,
			metrics:    deps.Metrics,
		},
	}, nil
}

// signingKeys - неизменяемые параметры подписи access-токенов.
type signingKeys struct {
	method jwt.SigningMethod
	secret []byte
	issuer string
}

func newSigningKeys(cfg config.AuthConfig) (*signingKeys, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &signingKeys{
		method: method,
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}, nil
}
