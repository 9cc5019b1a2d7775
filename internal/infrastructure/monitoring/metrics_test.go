package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncSessionsCreated()
	a.IncSessionsCreated()
	b.IncSessionsCreated()

	assert.Equal(t, float64(2), testutil.ToFloat64(a.SessionsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.SessionsCreated))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SetSessionsActive(3)
		m.RecordAssetLookup("hit")
		m.RecordRegistrationAttempt("join", "failure")
		m.RecordWSMessage("upstream")
		NewTimer(m, "session", "create").Stop("success")
	})
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/session/:sessionId", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/ABC", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues(http.MethodGet, "/session/:sessionId", "200"),
	))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "copper_http_requests_total")
}
