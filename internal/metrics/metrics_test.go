package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorがMetricsCollectorインターフェースを満たすことを検証
func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ MetricsCollector = NopCollector{}
}

// NewCollectorが全メトリクスを登録できることを検証
func TestNewCollector_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	if c == nil {
		t.Fatal("expected non-nil collector")
	}

	// 記録メソッドがパニックしないこと
	c.RecordReconcileSuccess()
	c.RecordReconcileFailure("no_credentials")
	c.RecordEventsImported(2)
	c.RecordEventsUpdated(1)
	c.RecordEventsDeleted(1)
	c.RecordOutboundPush("create")
	c.RecordOutboundFailure("delete")
	c.RecordWatchRenewal()
	c.RecordReconcileLatency(120 * time.Millisecond)
	c.RecordHTTPStatus(200)
	c.RecordWebhookDelivery(true)
}

// /metricsパスで記録済みメトリクスが公開されることを検証
func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordReconcileSuccess()
	c.RecordEventsImported(3)

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "bookman_reconcile_success_total") {
		t.Error("response should contain bookman_reconcile_success_total metric")
	}
	if !strings.Contains(bodyStr, "bookman_events_imported_total") {
		t.Error("response should contain bookman_events_imported_total metric")
	}
}
