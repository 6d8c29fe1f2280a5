package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/usdfinancial/backend/internal/metrics"
	"github.com/usdfinancial/backend/internal/middleware"
	"github.com/usdfinancial/backend/internal/model"
)

// HealthChecker はヘルスチェックが必要とするDB疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	ErrorHandler      *middleware.ErrorHandler
	CORSAllowedOrigin string
	InternalAPIKey    string
	IPRateLimiter     *middleware.IPRateLimiter
	AuthLimiter       AttemptLimiter

	// サービス
	UserService         UserServiceInterface
	NotificationService NotificationServiceInterface

	// 運用系
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → CORS → SecurityHeaders
//
// /api/* は追加で InternalKey → IPRateLimit を通る。
// /health と /metrics はAPIキー・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.UserService, deps.AuthLimiter)
	emailHandler := NewEmailHandler(deps.NotificationService)

	// --- 内部APIキーが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewInternalKeyMiddleware(deps.InternalAPIKey))
		if deps.IPRateLimiter != nil {
			r.Use(deps.IPRateLimiter.Middleware())
		}

		// ユーザーディレクトリ（action多重化）
		r.Post("/api/auth", deps.ErrorHandler.WithErrorHandler(authHandler.HandleAuth))

		// メール
		r.Route("/api/emails", func(r chi.Router) {
			r.Post("/preferences", deps.ErrorHandler.WithErrorHandler(emailHandler.HandlePreferences))
			r.Post("/welcome", deps.ErrorHandler.WithErrorHandler(emailHandler.HandleWelcome))
		})
	})

	// --- 運用系ルート ---

	r.Get("/health", deps.ErrorHandler.WithErrorHandler(func(req *http.Request, requestID string) (any, error) {
		ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
		defer cancel()
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(ctx); err != nil {
				return nil, model.NewDatabaseError("ping", err)
			}
		}
		return map[string]string{"status": "ok"}, nil
	}))

	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	return r
}
