package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "elearning"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	registry     *prom.Registry
	httpRequests *prom.CounterVec
	httpDuration *prom.HistogramVec
	aiRequests   *prom.CounterVec
	jobRuns      *prom.CounterVec
}

// New registers the application collectors, with the Go and process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		httpRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		httpDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "path"}),
		aiRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "LLM requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		jobRuns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_runs_total",
			Help:      "Background job runs by job and outcome",
		}, []string{"job", "outcome"}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.aiRequests, m.jobRuns,
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prom.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveAIRequest counts an LLM request of the given kind.
func (m *Metrics) ObserveAIRequest(kind string, err error) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveJobRun counts a background job run.
func (m *Metrics) ObserveJobRun(job string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}

// Middleware records the count and duration of requests, labelled by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				// write the error response now so that its status is recorded
				c.Error(err)
			}

			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
