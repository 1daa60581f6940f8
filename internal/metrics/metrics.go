// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 受付サービスや取り込みワーカーから利用する。
type MetricsCollector interface {
	RecordEvent(kind string)
	RecordSubmission()
	RecordAuthFailure()
	SetQueueDepth(n int)
	RecordFulfillSuccess()
	RecordFulfillFailure(reason string)
	RecordResolveLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	events         *prometheus.CounterVec
	submissions    prometheus.Counter
	authFailures   prometheus.Counter
	queueDepth     prometheus.Gauge
	fulfillSuccess prometheus.Counter
	fulfillFail    *prometheus.CounterVec
	resolveLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptbox_events_total",
			Help: "受信イベントの種別ごとの合計数",
		}, []string{"kind"}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptbox_submissions_total",
			Help: "受け付けた投稿の合計数",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptbox_auth_failures_total",
			Help: "パスワード認証失敗の合計数",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptbox_pending_queue_depth",
			Help: "保留キューの現在のアイテム数",
		}),
		fulfillSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptbox_fulfill_success_total",
			Help: "取り込み成功の合計数",
		}),
		fulfillFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptbox_fulfill_fail_total",
			Help: "取り込み失敗の理由別の合計数",
		}, []string{"reason"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptbox_resolve_latency_seconds",
			Help:    "画像参照解決のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.events,
		c.submissions,
		c.authFailures,
		c.queueDepth,
		c.fulfillSuccess,
		c.fulfillFail,
		c.resolveLatency,
	)

	return c
}

// RecordEvent は受信イベントを種別付きで記録する。
func (c *Collector) RecordEvent(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

// RecordSubmission は投稿の受け付けを記録する。
func (c *Collector) RecordSubmission() {
	c.submissions.Inc()
}

// RecordAuthFailure はパスワード認証失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Inc()
}

// SetQueueDepth は保留キューの現在の深さを記録する。
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// RecordFulfillSuccess は取り込み成功を記録する。
func (c *Collector) RecordFulfillSuccess() {
	c.fulfillSuccess.Inc()
}

// RecordFulfillFailure は取り込み失敗を理由付きで記録する。
func (c *Collector) RecordFulfillFailure(reason string) {
	c.fulfillFail.WithLabelValues(reason).Inc()
}

// RecordResolveLatency は画像参照解決のレイテンシを記録する。
func (c *Collector) RecordResolveLatency(duration time.Duration) {
	c.resolveLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
