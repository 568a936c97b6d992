package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/conference-auth/internal/pkg/log"
)

// Timeout ограничивает время обработки запроса бюджетом d.
// Deadline, уже пришедший с контекстом запроса, не переопределяется.
// При d <= 0 обработчик возвращается без обёртки.
//
// Если бюджет исчерпан к моменту возврата обработчика, в request-scoped
// логгер пишется предупреждение "request_deadline_exceeded".
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, inherited := r.Context().Deadline(); inherited {
				next.ServeHTTP(w, r)
				return
			}

			budgeted, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(budgeted))

			if errors.Is(budgeted.Err(), context.DeadlineExceeded) {
				logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelWarn, "request_deadline_exceeded",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", d),
					slog.Duration("elapsed", time.Since(start)),
				)
			}
		})
	}
}
