package middleware

import (
	"sync"
	"time"
)

// errorBucketKey はエラーコードと時間バケットの組を表すカウンターのキー。
type errorBucketKey struct {
	code   string
	bucket int64
}

// ErrorRateCounter はエラーコードごとの発生数をウィンドウ単位の時間バケットで数える。
// プロセス内のみで保持され、水平スケール時はインスタンスごとに独立する。
// 明示的に生成して渡す（パッケージグローバルにしない）。
type ErrorRateCounter struct {
	mu     sync.Mutex
	window time.Duration
	counts map[errorBucketKey]int

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time
}

// NewErrorRateCounter はErrorRateCounterを生成する。
// windowが0以下の場合は1時間を使用する。
func NewErrorRateCounter(window time.Duration) *ErrorRateCounter {
	if window <= 0 {
		window = time.Hour
	}
	return &ErrorRateCounter{
		window: window,
		counts: make(map[errorBucketKey]int),
		now:    time.Now,
	}
}

// Observe はエラーコードの発生を1回記録し、現在バケットの累計を返す。
// 記録のたびに1ウィンドウより古いバケットを遅延削除する。
func (c *ErrorRateCounter) Observe(code string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	bucket := now.Truncate(c.window).Unix()

	// 1ウィンドウより古いバケットを破棄
	cutoff := now.Add(-c.window).Unix()
	for key := range c.counts {
		if key.bucket < cutoff {
			delete(c.counts, key)
		}
	}

	key := errorBucketKey{code: code, bucket: bucket}
	c.counts[key]++
	return c.counts[key]
}

// Count は現在バケットの指定エラーコードの累計を返す。テストおよびメトリクス用。
func (c *ErrorRateCounter) Count(code string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.now().Truncate(c.window).Unix()
	return c.counts[errorBucketKey{code: code, bucket: bucket}]
}
