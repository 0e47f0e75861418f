package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "waifugen"

// Metrics holds the collectors of one process on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	generations      *prometheus.CounterVec
	creditsGranted   prometheus.Counter
	descriptionTasks *prometheus.CounterVec
}

func New(service string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		service:  strings.TrimSpace(service),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"service", "method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"service", "method", "path"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Image generations by outcome.",
			},
			[]string{"outcome"},
		),
		creditsGranted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_granted_total",
				Help:      "Credits granted by payment fulfillment.",
			},
		),
		descriptionTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "description_tasks_total",
				Help:      "Description task transitions by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if m.service == "" {
		m.service = "unknown"
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.generations,
		m.creditsGranted,
		m.descriptionTasks,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest matches util.RequestObserver.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	path := routePath(route)
	m.httpRequests.WithLabelValues(m.service, method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(m.service, method, path).Observe(elapsed.Seconds())
}

// Generation, CreditsGranted and DescriptionTask are no-ops on a nil *Metrics.
func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CreditsGranted(n int) {
	if m != nil && n > 0 {
		m.creditsGranted.Add(float64(n))
	}
}

func (m *Metrics) DescriptionTask(outcome string) {
	if m == nil {
		return
	}
	m.descriptionTasks.WithLabelValues(outcome).Inc()
}

// routePath drops the method from a ServeMux pattern ("GET /chat/{id}" -> "/chat/{id}").
func routePath(route string) string {
	if i := strings.IndexByte(route, ' '); i >= 0 {
		return strings.TrimSpace(route[i+1:])
	}
	return route
}
