// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервиса (или локальную ошибку транспорта),
// на выход даёт HTTP-статус и краткое безопасное сообщение без деталей.
//
// Источник истинности по видам ошибок: service.KindOf.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/conference-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Локальные ошибки транспорта (до вызова сервиса).
var (
	// ErrBadRequest - тело запроса не разобрано.
	ErrBadRequest = stderrors.New("bad request")
	// ErrUnauthenticated - нет Bearer-токена там, где он обязателен.
	ErrUnauthenticated = stderrors.New("unauthenticated")
	// ErrAlreadyAuthenticated - login с уже валидным access-токеном.
	ErrAlreadyAuthenticated = stderrors.New("already authenticated")
	// ErrRouteNotFound - маршрут не зарегистрирован.
	ErrRouteNotFound = stderrors.New("route not found")
	// ErrMethodNotAllowed - маршрут есть, метода нет.
	ErrMethodNotAllowed = stderrors.New("method not allowed")
)

// APIError - единый формат для клиента.
// Code - короткий стабильный код для машиночитаемой обработки.
// Message - безопасное человекочитаемое описание.
// RequestID - прокидывается из X-Request-Id, если есть.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500/internal;
//   - отмена клиентом - 499, истёкший дедлайн - 504 (проверяются первыми,
//     так как сервис оборачивает их в ErrRepository);
//   - локальные ошибки транспорта - по таблице localErrors;
//   - ошибки сервиса - по service.ErrorKind.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return response(http.StatusInternalServerError, "internal", "internal error")
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return response(StatusClientClosedRequest, "canceled", "canceled")
	case stderrors.Is(err, context.DeadlineExceeded):
		return response(http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded")
	}

	for _, le := range localErrors {
		if stderrors.Is(err, le.err) {
			return response(le.status, le.code, le.msg)
		}
	}

	return response(fromKind(service.KindOf(err)))
}

// WriteError - хелпер для HTTP-хендлеров.
// Пишет статус и тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="conference-auth"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

var localErrors = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{ErrBadRequest, http.StatusBadRequest, "invalid_argument", "invalid request body"},
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "bearer token required"},
	{ErrAlreadyAuthenticated, http.StatusForbidden, "already_authenticated", "already authenticated"},
	{ErrRouteNotFound, http.StatusNotFound, "not_found", "not found"},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"},
}

// fromKind - маппинг вида ошибки сервиса в HTTP/код/сообщение:
//   - InvalidUsername, InvalidPassword -> 400 invalid_credentials (одинаково,
//     чтобы не раскрывать существование имени);
//   - InvalidToken, TokenExpired, TokenRevoked -> 401 с отдельными кодами;
//   - UsernameTaken -> 409;
//   - InvalidArgument -> 400;
//   - Repository, Unknown -> 500/internal.
func fromKind(k service.ErrorKind) (int, string, string) {
	switch k {
	case service.KindInvalidUsername, service.KindInvalidPassword:
		return http.StatusBadRequest, "invalid_credentials", "invalid username or password"
	case service.KindInvalidToken:
		return http.StatusUnauthorized, "invalid_token", "invalid token"
	case service.KindTokenExpired:
		return http.StatusUnauthorized, "token_expired", "token expired"
	case service.KindTokenRevoked:
		return http.StatusUnauthorized, "token_revoked", "token revoked"
	case service.KindUsernameTaken:
		return http.StatusConflict, "already_exists", "username already taken"
	case service.KindInvalidArgument:
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case service.KindRepository, service.KindUnknown:
		return http.StatusInternalServerError, "internal", "internal error"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

func response(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}
