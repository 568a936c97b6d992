package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken - запись refresh-токена в хранилище.
// Хранилище ключуется хэшем значения (sha256 -> base64url), а не самим значением.
type RefreshToken struct {
	ID         uuid.UUID
	TokenHash  string
	IdentityID uuid.UUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// IsExpired - см. Token.IsExpired.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
