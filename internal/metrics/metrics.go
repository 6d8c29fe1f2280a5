// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// middleware.MetricsRecorderとauth.PipelineObserverの両方を満たす。
type Collector struct {
	apiErrors    *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	pipelineRuns *prometheus.CounterVec
	welcomeSent  prometheus.Counter
	rateLimited  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usdfinancial_api_errors_total",
			Help: "エラーコード別のAPIエラー数",
		}, []string{"code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usdfinancial_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usdfinancial_auth_pipeline_runs_total",
			Help: "認証副作用パイプラインの実行数（結果別）",
		}, []string{"result"}),
		welcomeSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usdfinancial_welcome_emails_sent_total",
			Help: "送信されたウェルカムメールの合計数",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usdfinancial_rate_limited_total",
			Help: "IPレート制限で拒否されたリクエスト数",
		}),
	}

	reg.MustRegister(
		c.apiErrors,
		c.httpStatus,
		c.pipelineRuns,
		c.welcomeSent,
		c.rateLimited,
	)

	return c
}

// RecordAPIError はAPIエラーをエラーコード別に記録する。
func (c *Collector) RecordAPIError(code string) {
	c.apiErrors.WithLabelValues(code).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPipelineRun は認証副作用パイプラインの実行を記録する。
func (c *Collector) RecordPipelineRun(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.pipelineRuns.WithLabelValues(result).Inc()
}

// RecordWelcomeSent はウェルカムメールの送信を記録する。
func (c *Collector) RecordWelcomeSent() {
	c.welcomeSent.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
