package models

import "github.com/google/uuid"

// TokenPair - access и refresh токены, выпущенные одним вызовом.
// Оба принадлежат одной identity и имеют одинаковый IssuedAt.
type TokenPair struct {
	Access  Token
	Refresh Token
}

// AuthTokens - внешнее представление результата login/refresh.
type AuthTokens struct {
	IdentityID   uuid.UUID `json:"identity_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
}

// AuthTokens собирает DTO из пары.
func (p *TokenPair) AuthTokens() *AuthTokens {
	return &AuthTokens{
		IdentityID:   p.Access.IdentityID,
		AccessToken:  p.Access.Value,
		RefreshToken: p.Refresh.Value,
	}
}
