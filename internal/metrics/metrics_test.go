package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.Counter.GetValue()
}

func TestActionsTotal_Increments(t *testing.T) {
	ActionsTotal.Reset()

	ActionsTotal.WithLabelValues("release", "ok").Inc()
	ActionsTotal.WithLabelValues("release", "ok").Inc()
	ActionsTotal.WithLabelValues("cancel", "error").Inc()

	if got := counterValue(t, ActionsTotal, "release", "ok"); got != 2.0 {
		t.Errorf("expected 2 release/ok, got %f", got)
	}
	if got := counterValue(t, ActionsTotal, "cancel", "error"); got != 1.0 {
		t.Errorf("expected 1 cancel/error, got %f", got)
	}
}

func TestObserveRPC_RecordsDuration(t *testing.T) {
	RPCCallDuration.Reset()

	done := ObserveRPC("getTrade")
	done()

	ch := make(chan prometheus.Metric, 10)
	RPCCallDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestMiddleware_CountsByRoutePattern(t *testing.T) {
	HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/trades/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/v1/trades/1", "/v1/trades/2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Both requests fold into the same route pattern.
	if got := counterValue(t, HTTPRequestsTotal, "GET", "/v1/trades/:id", "200"); got != 2.0 {
		t.Errorf("expected 2 requests for pattern, got %f", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := counterValue(t, HTTPRequestsTotal, "GET", "unmatched", "404"); got != 1.0 {
		t.Errorf("expected 1 unmatched request, got %f", got)
	}
}
