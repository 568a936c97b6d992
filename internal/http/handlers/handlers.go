package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pribylovaa/conference-auth/internal/models"
)

// maxBodyBytes ограничивает тело запроса.
const maxBodyBytes = 1 << 20

// AuthService - операции сервиса, нужные HTTP-слою.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.IdentityDescriptor, error)
	Login(ctx context.Context, username, password string) (*models.AuthTokens, error)
	RefreshTokens(ctx context.Context, refresh string) (*models.AuthTokens, error)
	Logout(ctx context.Context, refresh string) error
	ExtractUser(ctx context.Context, access string) (*models.IdentityDescriptor, error)
	IsTokenValid(access string) bool
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc AuthService
}

func New(svc AuthService) *Handlers {
	return &Handlers{svc: svc}
}

// writeJSON - единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля и хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after json object")
	}

	return nil
}
