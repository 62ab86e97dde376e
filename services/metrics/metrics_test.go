package metricsvc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/things/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/broken", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	for _, path := range []string{"/things/1", "/things/2", "/broken", "/nowhere"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/things/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/broken", "418")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.httpRequests))
}

func TestObservers(t *testing.T) {
	m := New()
	m.ObserveAIRequest("essay", nil)
	m.ObserveAIRequest("essay", errors.New("quota"))
	m.ObserveJobRun("attempts.timeout", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.aiRequests.WithLabelValues("essay", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aiRequests.WithLabelValues("essay", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("attempts.timeout", OutcomeSuccess)))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveJobRun("x", nil) })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "elearning_ai_requests_total")
	assert.Contains(t, rec.Body.String(), `elearning_jobs_runs_total{job="attempts.timeout",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
