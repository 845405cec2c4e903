package worker

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

const metricsNamespace = "fhe_worker"

// Metrics 执行端指标，使用独立的注册表
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	compute  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	contexts prometheus.Counter
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Operation requests handled, by operation and HTTP status.",
		}, []string{"operation", "status"}),
		compute: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling an operation request, including context rebuild and decoding.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "requests_in_flight",
			Help:      "Operation requests currently being handled.",
		}),
		contexts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "contexts_rebuilt_total",
			Help:      "Contexts rebuilt from request parameter records.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.compute,
		m.inFlight,
		m.contexts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 导出 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observe(op types.OperationKind, status int, d time.Duration) {
	label := "unknown"
	if kind, err := types.ParseOperation(string(op)); err == nil {
		label = string(kind)
	}
	m.requests.WithLabelValues(label, strconv.Itoa(status)).Inc()
	m.compute.WithLabelValues(label).Observe(d.Seconds())
}
