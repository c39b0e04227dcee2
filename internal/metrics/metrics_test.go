package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	m := Init(true)
	assert.NotNil(t, m)

	// Type assert to concrete Metrics to access fields
	metrics, ok := m.(*Metrics)
	assert.True(t, ok, "Init(true) should return *Metrics")
	assert.NotNil(t, metrics.ConnectAttemptsTotal)
	assert.NotNil(t, metrics.CallbacksTotal)
	assert.NotNil(t, metrics.TokenRefreshesTotal)
	assert.NotNil(t, metrics.ConnectedAccountsActive)
	assert.NotNil(t, metrics.HTTPRequestsTotal)
}

func TestInitNoop(t *testing.T) {
	m := Init(false)
	assert.NotNil(t, m)

	_, ok := m.(*NoopMetrics)
	assert.True(t, ok, "Init(false) should return *NoopMetrics")
}

func TestInitReturnsSameInstance(t *testing.T) {
	m1 := Init(true)
	m2 := Init(true)
	assert.Equal(t, m1, m2, "Init(true) should return the same instance")
}

func TestRecordConnectionFlow(t *testing.T) {
	m := Init(true)

	// Prometheus metrics don't return errors for recording; these just
	// must not panic
	m.RecordConnectAttempt("coinbase", true)
	m.RecordConnectAttempt("schwab", false)
	m.RecordCallback("coinbase", true)
	m.RecordCallback("coinbase", false)
	m.RecordTokenRefresh("schwab", true)
	m.RecordRevocation("coinbase", false)
	m.RecordProviderAPICall("coinbase", "exchange", 120*time.Millisecond)
	m.RecordRefreshSweep(3, 1)
	m.SetConnectedAccountsCount("coinbase", 42)
	m.RecordDatabaseQueryError("count_connected_accounts")
}

func TestNoopRecorder(t *testing.T) {
	m := NewNoopMetrics()

	m.RecordConnectAttempt("coinbase", true)
	m.RecordCallback("coinbase", false)
	m.RecordTokenRefresh("schwab", true)
	m.RecordRevocation("schwab", true)
	m.RecordProviderAPICall("schwab", "refresh", time.Second)
	m.RecordRefreshSweep(0, 0)
	m.SetConnectedAccountsCount("schwab", 0)
	m.RecordDatabaseQueryError("list_refresh_candidates")
}

func TestHTTPMetricsMiddlewareNoop(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(NewNoopMetrics()))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(Init(true)))
	router.GET("/accounts/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/accounts/7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unknown", normalizePath(""))
	assert.Equal(t, "/accounts/:id", normalizePath("/accounts/:id"))
}
