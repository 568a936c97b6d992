// storage описывает контракты хранилищ identity и refresh-токенов.
// Реализации: postgres, sqlite (identity + refresh), redis (только refresh).
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
	"github.com/pribylovaa/conference-auth/internal/models"
)

//go:generate mockgen -source=storage.go -destination=../../mocks/storage_mock.go -package=mocks

var (
	// ErrNotFound - запись не найдена (identity/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - нарушение уникальности (username/хэш refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
)

// IdentityStorage выполняет операции над identity.
type IdentityStorage interface {
	// SaveIdentity создаёт identity.
	SaveIdentity(ctx context.Context, identity *models.Identity) error
	// IdentityByUsername находит identity по имени пользователя.
	IdentityByUsername(ctx context.Context, username string) (*models.Identity, error)
	// IdentityByID находит identity по ID.
	IdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
// Записи не удаляются: отзыв только переключает флаг revoked.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по хэшу значения.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshToken атомарно переводит revoked false -> true.
	//
	//	(true, nil)  - токен был активен и отозван этим вызовом;
	//	(false, nil) - токен уже был отозван;
	//	(false, ErrNotFound) - токена нет.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	// RevokeIdentityRefreshTokens отзывает все активные токены identity
	// и возвращает число отозванных.
	RevokeIdentityRefreshTokens(ctx context.Context, identityID uuid.UUID) (int64, error)
}

// Storage - полное хранилище сервиса.
type Storage interface {
	IdentityStorage
	RefreshTokenStorage
	Close()
}

// HashToken вычисляет ключ хранения для значения refresh-токена.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
