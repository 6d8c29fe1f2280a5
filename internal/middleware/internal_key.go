package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// internalKeyHeader は内部APIキーを渡すリクエストヘッダー名。
// /api/* はフロントエンドのサーバーサイドからのみ呼ばれる内部APIであり、
// ブラウザから直接は叩かせない。
const internalKeyHeader = "X-Internal-Api-Key"

// NewInternalKeyMiddleware は内部APIキーを検証するミドルウェアを返す。
// キー比較は一定時間比較で行う。不一致は統一エンベロープの403を返す。
func NewInternalKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(internalKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				slog.Warn("internal api key validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
				)
				WriteErrorEnvelope(w, http.StatusForbidden, APIErrorBody{
					Code:      model.ErrCodePermission,
					Message:   "permission denied",
					Timestamp: time.Now().UTC().Format(time.RFC3339),
					RequestID: RequestIDFromContext(r.Context()),
					Path:      r.URL.Path,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
