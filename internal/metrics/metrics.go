package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"depthview/internal/model"
)

const namespace = "depthview"

// Metrics groups every collector the service exports. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsApplied prometheus.Counter
	FeedDropped      *prometheus.CounterVec
	Reconnects       prometheus.Counter
	Connected        prometheus.Gauge
	BookLevels       *prometheus.GaugeVec
	CycleLatencyMs   prometheus.Histogram
	Superseded       prometheus.Counter
	RenderErrors     *prometheus.CounterVec
	HubClients       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SnapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_snapshots_total",
			Help:      "Book snapshots accepted from the feed",
		}),
		FeedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Feed messages discarded without a store update, by reason",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Reconnect attempts scheduled after a feed close",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connected",
			Help:      "1 while the feed is connected",
		}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Levels in the current snapshot by side",
		}, []string{"side"}),
		CycleLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_cycle_ms",
			Help:      "Time to aggregate, format and hand a view to renderers",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 50},
		}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_superseded_total",
			Help:      "Store updates skipped because a newer one arrived first",
		}),
		RenderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Renderer failures by renderer",
		}, []string{"renderer"}),
		HubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_clients",
			Help:      "Connected websocket view clients",
		}),
	}

	reg.MustRegister(
		m.SnapshotsApplied, m.FeedDropped, m.Reconnects, m.Connected, m.BookLevels,
		m.CycleLatencyMs, m.Superseded, m.RenderErrors, m.HubClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordSnapshot(s model.BookSnapshot) {
	m.SnapshotsApplied.Inc()
	m.BookLevels.WithLabelValues("bid").Set(float64(len(s.Bids)))
	m.BookLevels.WithLabelValues("ask").Set(float64(len(s.Asks)))
}

func (m *Metrics) RecordDrop(reason string) {
	m.FeedDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordReconnect() {
	m.Reconnects.Inc()
}

func (m *Metrics) RecordStatus(s model.ConnectivityStatus) {
	if s == model.Connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) RecordCycle(d time.Duration) {
	m.CycleLatencyMs.Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) RecordSuperseded(n uint64) {
	if n > 0 {
		m.Superseded.Add(float64(n))
	}
}

func (m *Metrics) RecordRenderError(renderer string) {
	m.RenderErrors.WithLabelValues(renderer).Inc()
}

func (m *Metrics) SetHubClients(n int) {
	m.HubClients.Set(float64(n))
}
