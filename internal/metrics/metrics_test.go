package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordMessage_CountsPerStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessage("initial")
	c.RecordMessage("initial")
	c.RecordMessage("awaiting_year")

	if v := findMetric(t, reg, "astropulse_messages_total", map[string]string{"step": "initial"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("messages_total{step=initial} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "astropulse_messages_total", map[string]string{"step": "awaiting_year"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("messages_total{step=awaiting_year} = %v, want 1", v)
	}
}

func TestRecordTransition_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition("awaiting_zodiac", "awaiting_year")

	m := findMetric(t, reg, "astropulse_transitions_total", map[string]string{"from": "awaiting_zodiac", "to": "awaiting_year"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("transitions_total = %v, want 1", v)
	}
}

func TestRecordFailure_CountsPerKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFailure("data_unavailable")
	c.RecordFailure("data_unavailable")
	c.RecordFailure("render")

	if v := findMetric(t, reg, "astropulse_failures_total", map[string]string{"kind": "data_unavailable"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("failures_total{kind=data_unavailable} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "astropulse_failures_total", map[string]string{"kind": "render"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("failures_total{kind=render} = %v, want 1", v)
	}
}

func TestRecordReportDelivered_And_Farewell(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReportDelivered("ml")
	c.RecordFarewell("cancelled")

	if v := findMetric(t, reg, "astropulse_reports_delivered_total", map[string]string{"language": "ml"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("reports_delivered_total{language=ml} = %v, want 1", v)
	}
	if v := findMetric(t, reg, "astropulse_farewells_total", map[string]string{"result": "cancelled"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("farewells_total{result=cancelled} = %v, want 1", v)
	}
}

func TestRecordPredictionLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPredictionLatency(250 * time.Millisecond)
	c.RecordPredictionLatency(2 * time.Second)

	h := findMetric(t, reg, "astropulse_prediction_latency_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 2.24 || h.GetSampleSum() > 2.26 {
		t.Errorf("sample sum = %v, want 2.25", h.GetSampleSum())
	}
}

func TestRecordPhaseFallback_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPhaseFallback()

	if v := findMetric(t, reg, "astropulse_prediction_phase_fallback_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("phase_fallback_total = %v, want 1", v)
	}
}

func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFailure("delivery")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `astropulse_failures_total{kind="delivery"} 1`) {
		t.Errorf("response should contain failures_total sample, got:\n%s", body)
	}
}

func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = NewCollector(prometheus.NewRegistry())
	var _ MetricsCollector = Noop{}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリなら重複登録でpanicしないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	c1 := NewCollector(prometheus.NewRegistry())
	c2 := NewCollector(prometheus.NewRegistry())
	if c1 == nil || c2 == nil {
		t.Fatal("expected non-nil collectors")
	}
}
