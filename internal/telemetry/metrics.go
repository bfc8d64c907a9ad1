// Package telemetry holds the prometheus instrumentation shared across
// the ingestion pipeline and the chat engine. A nil *Metrics disables
// recording, so components never need to branch on whether telemetry is
// enabled.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ingestRuns        *prometheus.CounterVec
	documentsEmbedded prometheus.Counter
	chatRequests      *prometheus.CounterVec
	chatDuration      prometheus.Histogram
	toolDispatches    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ingestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "touchline_ingest_runs_total",
			Help: "Ingestion runs by result.",
		}, []string{"result"}),
		documentsEmbedded: factory.NewCounter(prometheus.CounterOpts{
			Name: "touchline_documents_embedded_total",
			Help: "Documents embedded and upserted into the index.",
		}),
		chatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "touchline_chat_requests_total",
			Help: "Chat requests by result.",
		}, []string{"result"}),
		chatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "touchline_chat_duration_seconds",
			Help:    "End-to-end chat turn latency.",
			Buckets: prometheus.DefBuckets,
		}),
		toolDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "touchline_tool_dispatches_total",
			Help: "Tool dispatches by tool name.",
		}, []string{"tool"}),
	}
}

func (m *Metrics) ObserveIngestRun(result string, embedded int) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(result).Inc()
	if embedded > 0 {
		m.documentsEmbedded.Add(float64(embedded))
	}
}

func (m *Metrics) ObserveChat(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(result).Inc()
	m.chatDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveToolDispatch(tool string) {
	if m == nil {
		return
	}
	m.toolDispatches.WithLabelValues(tool).Inc()
}
