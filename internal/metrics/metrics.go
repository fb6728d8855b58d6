// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 会話エンジン、予測クライアント、ワーカーから利用する。
type MetricsCollector interface {
	RecordMessage(step string)
	RecordTransition(from, to string)
	RecordFailure(kind string)
	RecordReportDelivered(language string)
	RecordPredictionLatency(duration time.Duration)
	RecordPhaseFallback()
	RecordFarewell(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messages          *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	failures          *prometheus.CounterVec
	reportsDelivered  *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	phaseFallback     prometheus.Counter
	farewells         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astropulse_messages_total",
			Help: "受信メッセージ数（受信時のステップ別）",
		}, []string{"step"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astropulse_transitions_total",
			Help: "確定したステップ遷移数",
		}, []string{"from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astropulse_failures_total",
			Help: "失敗分類別の失敗数",
		}, []string{"kind"}),
		reportsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astropulse_reports_delivered_total",
			Help: "送信に成功したPDFレポート数",
		}, []string{"language"}),
		predictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "astropulse_prediction_latency_seconds",
			Help:    "予測API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		phaseFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astropulse_prediction_phase_fallback_total",
			Help: "要求したフェーズが無く別フェーズで代替した回数",
		}),
		farewells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astropulse_farewells_total",
			Help: "終了メッセージの結果別件数（sent, failed, cancelled）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.messages,
		c.transitions,
		c.failures,
		c.reportsDelivered,
		c.predictionLatency,
		c.phaseFallback,
		c.farewells,
	)

	return c
}

// RecordMessage は受信メッセージを記録する。
func (c *Collector) RecordMessage(step string) {
	c.messages.WithLabelValues(step).Inc()
}

// RecordTransition はステップ遷移を記録する。
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordFailure は失敗を記録する。
func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}

// RecordReportDelivered はレポート送信成功を記録する。
func (c *Collector) RecordReportDelivered(language string) {
	c.reportsDelivered.WithLabelValues(language).Inc()
}

// RecordPredictionLatency は予測APIのレイテンシを記録する。
func (c *Collector) RecordPredictionLatency(duration time.Duration) {
	c.predictionLatency.Observe(duration.Seconds())
}

// RecordPhaseFallback はフェーズ代替を記録する。
func (c *Collector) RecordPhaseFallback() {
	c.phaseFallback.Inc()
}

// RecordFarewell は終了メッセージの結果を記録する。
func (c *Collector) RecordFarewell(result string) {
	c.farewells.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。メトリクスが不要なテストで使う。
type Noop struct{}

func (Noop) RecordMessage(string) {}
func (Noop) RecordTransition(string, string) {}
func (Noop) RecordFailure(string) {}
func (Noop) RecordReportDelivered(string) {}
func (Noop) RecordPredictionLatency(time.Duration) {}
func (Noop) RecordPhaseFallback() {}
func (Noop) RecordFarewell(string) {}
