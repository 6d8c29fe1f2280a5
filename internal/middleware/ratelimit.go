package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/usdfinancial/backend/internal/model"
	"golang.org/x/time/rate"
)

// --- 識別子ごとのスライディングウィンドウリミッター ---

// SlidingWindowLimiter は固定ウィンドウ幅のスライディングウィンドウレート制限を提供する。
// 識別子ごとにリクエスト時刻を保持し、チェックのたびにウィンドウ外の時刻を破棄する。
// 状態はプロセス内のみで保持され、水平スケール時はインスタンスごとに独立する。
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	hits   map[string][]time.Time

	stopCh chan struct{}

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time
}

// NewSlidingWindowLimiter はSlidingWindowLimiterを生成する。
// バックグラウンドで放置された識別子エントリのクリーンアップを開始する。
func NewSlidingWindowLimiter(window time.Duration, limit int) *SlidingWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	l := &SlidingWindowLimiter{
		window: window,
		limit:  limit,
		hits:   make(map[string][]time.Time),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *SlidingWindowLimiter) Stop() {
	close(l.stopCh)
}

// Check は識別子のリクエストを1回分記録し、制限内ならtrueを返す。
// falseの場合は記録せず、制限の執行（429返却など）は呼び出し側に委ねる。
func (l *SlidingWindowLimiter) Check(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// ウィンドウ外の時刻を破棄
	recent := l.hits[identifier][:0]
	for _, t := range l.hits[identifier] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.hits[identifier] = recent
		return false
	}

	l.hits[identifier] = append(recent, now)
	return true
}

// IdentifierCount は現在追跡中の識別子数を返す。テストおよびメトリクス用。
func (l *SlidingWindowLimiter) IdentifierCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// cleanupLoop はウィンドウ幅の2倍の間隔で、全時刻がウィンドウ外になった識別子を削除する。
func (l *SlidingWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *SlidingWindowLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for identifier, times := range l.hits {
		stale := true
		for _, t := range times {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.hits, identifier)
		}
	}
}

// --- クライアントIPごとのトークンバケットリミッター ---

// RateLimitObserver はレート制限による拒否の通知を受け取る。
type RateLimitObserver interface {
	RecordRateLimited()
}

// IPRateLimiterConfig はIPごとのレート制限の設定を保持する。
type IPRateLimiterConfig struct {
	Rate            rate.Limit    // /api/* 全般のレート（req/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
	Observer        RateLimitObserver
}

// DefaultIPRateLimiterConfig は指定req/minからデフォルト設定を生成する。
func DefaultIPRateLimiterConfig(requestsPerMinute int) IPRateLimiterConfig {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	return IPRateLimiterConfig{
		Rate:            rate.Limit(float64(requestsPerMinute) / 60.0),
		Burst:           requestsPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// ipLimiter はIPごとのトークンバケットとアクセス時刻を保持する。
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter はクライアントIPごとのAPI全般レート制限を管理する。
// 識別子単位のSlidingWindowLimiterとは独立に、トランスポート層で動作する。
type IPRateLimiter struct {
	config IPRateLimiterConfig

	mu       sync.Mutex
	limiters map[string]*ipLimiter

	stopCh chan struct{}
}

// NewIPRateLimiter はIPRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewIPRateLimiter(config IPRateLimiterConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		config:   config,
		limiters: make(map[string]*ipLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *IPRateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware はクライアントIPごとのレート制限ミドルウェアを返す。
// 制限超過時は統一エンベロープの429とRetry-Afterヘッダーを返す。
func (rl *IPRateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)
			limiter := rl.getOrCreateLimiter(clientIP)

			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientIP),
					slog.String("path", r.URL.Path),
				)
				if rl.config.Observer != nil {
					rl.config.Observer.RecordRateLimited()
				}
				writeRateLimitResponse(w, r, rl.config.Rate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。テスト用。
func (rl *IPRateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// getOrCreateLimiter はクライアントIPのリミッターを取得または作成する。
func (rl *IPRateLimiter) getOrCreateLimiter(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[clientIP]; exists {
		l.lastAccess = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters[clientIP] = &ipLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *IPRateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for clientIP, l := range rl.limiters {
		if now.Sub(l.lastAccess) > ttl {
			delete(rl.limiters, clientIP)
		}
	}
}

// writeRateLimitResponse は統一エンベロープで429 Too Many Requestsを書き込む。
// Retry-Afterヘッダーには1トークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r *http.Request, limit rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))

	WriteErrorEnvelope(w, http.StatusTooManyRequests, APIErrorBody{
		Code:      model.ErrCodeRateLimit,
		Message:   "Too many requests. Please try again later.",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: RequestIDFromContext(r.Context()),
		Path:      r.URL.Path,
	})
}
