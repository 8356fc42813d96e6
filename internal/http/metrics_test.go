package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/tutorrag/internal/telemetry"
)

func TestMetrics_Middleware(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := NewMetrics(tel.Meter(instrumentationName), nil)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/node-progress/:user_id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	for _, path := range []string{"/node-progress/u1", "/node-progress/u2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fail", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got, err := tel.CounterValue(t.Context(), "tutorrag.http.requests_total",
		attribute.String("route", "/node-progress/:user_id"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = tel.CounterValue(t.Context(), "tutorrag.http.requests_total",
		attribute.String("route", "/fail"), attribute.Int("status", http.StatusBadRequest))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "unmatched", routeLabel("/*"))
	assert.Equal(t, "/health", routeLabel("/health"))
}
