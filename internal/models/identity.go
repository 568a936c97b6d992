package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity - учётная запись, от имени которой выпускаются токены.
type Identity struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// IdentityDescriptor - публичное описание identity без секретов.
type IdentityDescriptor struct {
	ID       uuid.UUID `json:"identity_id"`
	Username string    `json:"username"`
}

// Descriptor возвращает публичную часть identity.
func (i *Identity) Descriptor() *IdentityDescriptor {
	return &IdentityDescriptor{ID: i.ID, Username: i.Username}
}
