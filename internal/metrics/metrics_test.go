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

// counterValue はレジストリから指定メトリクスのカウンタ値を取り出す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordEvent_IncrementsCounterWithLabel はイベントカウンタが種別ラベル付きで増加することを検証する。
func TestRecordEvent_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEvent("text")
	c.RecordEvent("text")
	c.RecordEvent("photo")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "promptbox_events_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "text":
					if val != 2 {
						t.Errorf("events_total{kind=text} = %v, want 2", val)
					}
				case "photo":
					if val != 1 {
						t.Errorf("events_total{kind=photo} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("promptbox_events_total metric not found")
	}
}

// TestRecordSubmission_IncrementsCounter は投稿カウンタが増加することを検証する。
func TestRecordSubmission_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmission()
	c.RecordSubmission()

	if val := counterValue(t, reg, "promptbox_submissions_total"); val != 2 {
		t.Errorf("submissions_total = %v, want 2", val)
	}
}

// TestRecordAuthFailure_IncrementsCounter は認証失敗カウンタが増加することを検証する。
func TestRecordAuthFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthFailure()

	if val := counterValue(t, reg, "promptbox_auth_failures_total"); val != 1 {
		t.Errorf("auth_failures_total = %v, want 1", val)
	}
}

// TestSetQueueDepth_SetsGauge はキュー深さゲージが設定されることを検証する。
func TestSetQueueDepth_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetQueueDepth(7)
	c.SetQueueDepth(3)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "promptbox_pending_queue_depth" {
			found = true
			val := mf.GetMetric()[0].GetGauge().GetValue()
			if val != 3 {
				t.Errorf("pending_queue_depth = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("promptbox_pending_queue_depth metric not found")
	}
}

// TestRecordFulfillFailure_IncrementsCounterWithReason は取り込み失敗カウンタが理由ラベル付きで増加することを検証する。
func TestRecordFulfillFailure_IncrementsCounterWithReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFulfillFailure("resolve")
	c.RecordFulfillFailure("resolve")
	c.RecordFulfillFailure("artifact")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "promptbox_fulfill_fail_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("promptbox_fulfill_fail_total metric not found")
	}
}

// TestRecordResolveLatency_ObservesHistogram は解決レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordResolveLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResolveLatency(100 * time.Millisecond)
	c.RecordResolveLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "promptbox_resolve_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("promptbox_resolve_latency_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordEvent("text")
	c.RecordSubmission()
	c.RecordAuthFailure()
	c.SetQueueDepth(1)
	c.RecordFulfillSuccess()
	c.RecordFulfillFailure("resolve")
	c.RecordResolveLatency(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"promptbox_events_total",
		"promptbox_submissions_total",
		"promptbox_auth_failures_total",
		"promptbox_pending_queue_depth",
		"promptbox_fulfill_success_total",
		"promptbox_fulfill_fail_total",
		"promptbox_resolve_latency_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}
