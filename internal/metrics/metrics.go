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
// 同期エンジンやサービス層から利用する。
type MetricsCollector interface {
	RecordReconcileSuccess()
	RecordReconcileFailure(reason string)
	RecordEventsImported(count int)
	RecordEventsUpdated(count int)
	RecordEventsDeleted(count int)
	RecordOutboundPush(operation string)
	RecordOutboundFailure(operation string)
	RecordWatchRenewal()
	RecordReconcileLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordWebhookDelivery(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconcileSuccess prometheus.Counter
	reconcileFail    *prometheus.CounterVec
	eventsImported   prometheus.Counter
	eventsUpdated    prometheus.Counter
	eventsDeleted    prometheus.Counter
	outboundPush     *prometheus.CounterVec
	outboundFail     *prometheus.CounterVec
	watchRenewals    prometheus.Counter
	reconcileLatency prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	webhookDelivery  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcileSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_reconcile_success_total",
			Help: "カレンダー照合成功の合計数",
		}),
		reconcileFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_reconcile_fail_total",
			Help: "カレンダー照合失敗の理由別合計数",
		}, []string{"reason"}),
		eventsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_events_imported_total",
			Help: "リモートカレンダーから取り込んだイベントの合計数",
		}),
		eventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_events_updated_total",
			Help: "リモート変更を反映したイベントの合計数",
		}),
		eventsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_events_deleted_total",
			Help: "リモートのキャンセルで削除したイベントの合計数",
		}),
		outboundPush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_outbound_push_total",
			Help: "リモートカレンダーへの反映操作の種別合計数",
		}, []string{"operation"}),
		outboundFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_outbound_fail_total",
			Help: "リモートカレンダーへの反映失敗の種別合計数",
		}, []string{"operation"}),
		watchRenewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_watch_renewals_total",
			Help: "監視チャネル更新の合計数",
		}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookman_reconcile_latency_seconds",
			Help:    "カレンダー照合のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_webhook_delivery_total",
			Help: "テナントWebhook配信の結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.reconcileSuccess,
		c.reconcileFail,
		c.eventsImported,
		c.eventsUpdated,
		c.eventsDeleted,
		c.outboundPush,
		c.outboundFail,
		c.watchRenewals,
		c.reconcileLatency,
		c.httpStatus,
		c.webhookDelivery,
	)

	return c
}

// RecordReconcileSuccess は照合成功を記録する。
func (c *Collector) RecordReconcileSuccess() {
	c.reconcileSuccess.Inc()
}

// RecordReconcileFailure は照合失敗を記録する。
func (c *Collector) RecordReconcileFailure(reason string) {
	c.reconcileFail.WithLabelValues(reason).Inc()
}

// RecordEventsImported は取り込んだイベント数を記録する。
func (c *Collector) RecordEventsImported(count int) {
	c.eventsImported.Add(float64(count))
}

// RecordEventsUpdated はリモート変更を反映したイベント数を記録する。
func (c *Collector) RecordEventsUpdated(count int) {
	c.eventsUpdated.Add(float64(count))
}

// RecordEventsDeleted は削除したイベント数を記録する。
func (c *Collector) RecordEventsDeleted(count int) {
	c.eventsDeleted.Add(float64(count))
}

// RecordOutboundPush はリモートへの反映操作を記録する。
func (c *Collector) RecordOutboundPush(operation string) {
	c.outboundPush.WithLabelValues(operation).Inc()
}

// RecordOutboundFailure はリモートへの反映失敗を記録する。
func (c *Collector) RecordOutboundFailure(operation string) {
	c.outboundFail.WithLabelValues(operation).Inc()
}

// RecordWatchRenewal は監視チャネル更新を記録する。
func (c *Collector) RecordWatchRenewal() {
	c.watchRenewals.Inc()
}

// RecordReconcileLatency は照合のレイテンシを記録する。
func (c *Collector) RecordReconcileLatency(duration time.Duration) {
	c.reconcileLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookDelivery はテナントWebhook配信の結果を記録する。
func (c *Collector) RecordWebhookDelivery(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.webhookDelivery.WithLabelValues(result).Inc()
}

// SetupMetricsRoute はメトリクス公開用のHTTPハンドラーを生成する。
func SetupMetricsRoute(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector実装。テスト用。
type NopCollector struct{}

func (NopCollector) RecordReconcileSuccess()                      {}
func (NopCollector) RecordReconcileFailure(reason string)         {}
func (NopCollector) RecordEventsImported(count int)               {}
func (NopCollector) RecordEventsUpdated(count int)                {}
func (NopCollector) RecordEventsDeleted(count int)                {}
func (NopCollector) RecordOutboundPush(operation string)          {}
func (NopCollector) RecordOutboundFailure(operation string)       {}
func (NopCollector) RecordWatchRenewal()                          {}
func (NopCollector) RecordReconcileLatency(duration time.Duration) {}
func (NopCollector) RecordHTTPStatus(statusCode int)              {}
func (NopCollector) RecordWebhookDelivery(success bool)           {}
