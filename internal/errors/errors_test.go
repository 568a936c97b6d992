package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/conference-auth/internal/service"
)

func TestToHTTP_ServiceKinds(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
	}{
		{"invalid_username", service.ErrInvalidUsername, http.StatusBadRequest, "invalid_credentials"},
		{"invalid_password", fmt.Errorf("op: %w", service.ErrInvalidPassword), http.StatusBadRequest, "invalid_credentials"},
		{"invalid_token", service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{"token_expired", service.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{"token_revoked", service.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
		{"username_taken", service.ErrUsernameTaken, http.StatusConflict, "already_exists"},
		{"invalid_argument", service.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		{"repository", fmt.Errorf("op: %w: %w", service.ErrRepository, fmt.Errorf("dial tcp: refused")), http.StatusInternalServerError, "internal"},
		{"unknown", fmt.Errorf("something else"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_CredentialErrorsAreIndistinguishable(t *testing.T) {
	s1, r1 := ToHTTP(service.ErrInvalidUsername)
	s2, r2 := ToHTTP(service.ErrInvalidPassword)

	require.Equal(t, s1, s2)
	require.Equal(t, r1, r2)
}

func TestToHTTP_ContextErrors(t *testing.T) {
	wrappedCancel := fmt.Errorf("op: %w: %w", service.ErrRepository, context.Canceled)
	status, resp := ToHTTP(wrappedCancel)
	require.Equal(t, StatusClientClosedRequest, status)
	require.Equal(t, "canceled", resp.Error.Code)

	wrappedDeadline := fmt.Errorf("op: %w: %w", service.ErrRepository, context.DeadlineExceeded)
	status, resp = ToHTTP(wrappedDeadline)
	require.Equal(t, http.StatusGatewayTimeout, status)
	require.Equal(t, "deadline_exceeded", resp.Error.Code)
}

func TestToHTTP_LocalErrors(t *testing.T) {
	tcs := []struct {
		in         error
		wantStatus int
		wantCode   string
	}{
		{ErrBadRequest, http.StatusBadRequest, "invalid_argument"},
		{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{ErrAlreadyAuthenticated, http.StatusForbidden, "already_authenticated"},
		{ErrRouteNotFound, http.StatusNotFound, "not_found"},
		{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tc := range tcs {
		gotStatus, resp := ToHTTP(tc.in)
		require.Equal(t, tc.wantStatus, gotStatus, tc.in.Error())
		require.Equal(t, tc.wantCode, resp.Error.Code)
	}
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_BodyAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.Header.Set("X-Request-Id", "rid-1")

	WriteError(rr, req, service.ErrTokenRevoked)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "token_revoked", env.Error.Code)
	require.Equal(t, "rid-1", env.Error.RequestID)
}

func TestWriteError_RepositoryDoesNotLeakCause(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)

	WriteError(rr, req, fmt.Errorf("op: %w: %w", service.ErrRepository, fmt.Errorf("password=hunter2")))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "hunter2")
	require.Empty(t, rr.Header().Get("WWW-Authenticate"))
}
