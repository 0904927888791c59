// requestid.go — middleware идентификаторов запросов.
// Каждому запросу назначается UUID (или берётся входящий X-Request-Id),
// он кладётся в контекст и в заголовок ответа для сквозной трассировки логов.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// ContextKeyRequestID — идентификатор запроса в контексте.
	ContextKeyRequestID contextKey = "request_id"
	// HeaderRequestID — HTTP-заголовок идентификатора запроса.
	HeaderRequestID = "X-Request-Id"
)

// RequestID возвращает middleware, назначающий запросу идентификатор.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext извлекает идентификатор запроса из контекста.
// Возвращает пустую строку, если идентификатор не назначен.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}
