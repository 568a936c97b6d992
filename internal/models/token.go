package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind - тип выпущенного токена.
type TokenKind int

const (
	TokenAccess TokenKind = iota + 1
	TokenRefresh
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Token - один выпущенный токен.
//
// Для access-токена Value содержит подписанный JWT, ID попадает в claim jti.
// Для refresh-токена Value - непрозрачная случайная строка, которая
// отдаётся клиенту и нигде не хранится в открытом виде.
type Token struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Value      string
	Kind       TokenKind
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// IsExpired сообщает, истёк ли токен к моменту now (граница включительно).
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
