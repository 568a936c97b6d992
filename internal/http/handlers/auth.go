package handlers

import (
	"mime"
	"net/http"

	apierrors "github.com/pribylovaa/conference-auth/internal/errors"
	"github.com/pribylovaa/conference-auth/internal/http/middleware"
)

// credentials - тело /register и /login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register создаёт identity: 201 {identity_id, username}.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	out, err := h.svc.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

// Login принимает JSON или форму. С уже валидным access-токеном в
// Authorization отвечает 403.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r.Context()); ok && h.svc.IsTokenValid(token) {
		apierrors.WriteError(w, r, apierrors.ErrAlreadyAuthenticated)
		return
	}

	in, err := readCredentials(w, r)
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	out, err := h.svc.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// Refresh обменивает refresh-токен из Authorization на новую пару.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	out, err := h.svc.RefreshTokens(r.Context(), token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// Logout отзывает refresh-токен из Authorization: 204.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	if err := h.svc.Logout(r.Context(), token); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает identity владельца access-токена.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	out, err := h.svc.ExtractUser(r.Context(), token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" {
		var in credentials
		err := decodeStrict(w, r, &in)
		return in, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return credentials{}, err
	}

	return credentials{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}, nil
}
