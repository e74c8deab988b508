package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	for _, path := range []string{"/api/v1/patients/1", "/api/v1/patients/2", "/api/v1/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/patients/:id", "200")); got != 2 {
		t.Errorf("expected 2 requests on the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/missing", "404")); got != 1 {
		t.Errorf("expected 1 not-found request, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeRequests); got != 0 {
		t.Errorf("expected no active requests, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.ObserveTransition("consultation", "mark_completed", "ok")
	m.ObserveTransition("consultation", "mark_completed", "ok")
	m.ObserveTransition("certificate", "issue_certificate", "invalid_state")
	m.SequenceAllocated("CONS")
	m.NotificationsRelayed(3, "published")
	m.NotificationsRelayed(0, "published")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("consultation", "mark_completed", "ok")); got != 2 {
		t.Errorf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.sequences.WithLabelValues("CONS")); got != 1 {
		t.Errorf("expected 1 allocation, got %v", got)
	}
	if got := testutil.ToFloat64(m.relayed.WithLabelValues("published")); got != 3 {
		t.Errorf("expected 3 relayed, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("referral", "send", "ok")
	m.SequenceAllocated("REF")
	m.NotificationsRelayed(1, "published")
	m.RegisterPool(nil)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := m.Middleware()(func(c echo.Context) error { return nil })(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.SequenceAllocated("P")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatal(err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `rhu_sequence_numbers_allocated_total{prefix="P"} 1`) {
		t.Errorf("expected sequence counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime collector output")
	}
}
