package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一エンベロープの500レスポンスを返すミドルウェアを生成する。
// WithErrorHandler配下のハンドラーはそちらで先に捕捉されるため、
// このミドルウェアはラップされていないルートの最終防衛線となる。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := RequestIDFromContext(r.Context())
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", requestID),
						slog.String("stack", string(debug.Stack())),
					)
					WriteErrorEnvelope(w, http.StatusInternalServerError, APIErrorBody{
						Code:      model.ErrCodeUnknown,
						Message:   "internal server error",
						Timestamp: time.Now().UTC().Format(time.RFC3339),
						RequestID: requestID,
						Path:      r.URL.Path,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
