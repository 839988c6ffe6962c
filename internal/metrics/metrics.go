// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordReviewCreated()
	RecordUploadFailure()
	RecordGeocodeFailure()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   prometheus.Counter
	loginFail      *prometheus.CounterVec
	reviewsCreated prometheus.Counter
	uploadFail     prometheus.Counter
	geocodeFail    prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_login_fail_total",
			Help: "ログイン失敗の合計数（原因別）",
		}, []string{"reason"}),
		reviewsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_created_total",
			Help: "作成されたレビューの合計数",
		}),
		uploadFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_upload_fail_total",
			Help: "画像アップロード失敗の合計数",
		}),
		geocodeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_geocode_fail_total",
			Help: "ジオコーディング失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reviews_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.reviewsCreated,
		c.uploadFail,
		c.geocodeFail,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を原因付きで記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordReviewCreated はレビュー作成を記録する。
func (c *Collector) RecordReviewCreated() {
	c.reviewsCreated.Inc()
}

// RecordUploadFailure は画像アップロード失敗を記録する。
func (c *Collector) RecordUploadFailure() {
	c.uploadFail.Inc()
}

// RecordGeocodeFailure はジオコーディング失敗を記録する。
func (c *Collector) RecordGeocodeFailure() {
	c.geocodeFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
