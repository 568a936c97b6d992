package middleware

import (
	"context"
	"net/http"
	"strings"
)

// AuthBearer извлекает Bearer-токен из Authorization и кладёт "сырой" токен
// в контекст (см. BearerToken). Схема сравнивается без учёта регистра.
// Отсутствие или неверный формат заголовка запрос не отклоняет:
// решение принимает обработчик.
func AuthBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := parseBearer(r.Header.Get("Authorization")); token != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxBearerToken, token))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBearer(header string) string {
	const prefix = "bearer "

	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}
