package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackrater/src/core/ports"
)

func TestObserveBroadcast(t *testing.T) {
	m := New()
	m.ObserveBroadcast(ports.RoomPanel, "queue_state", nil)
	m.ObserveBroadcast(ports.RoomPanel, "queue_state", nil)
	m.ObserveBroadcast(ports.RoomPublic, "queue_state", errors.New("closed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastTotal.WithLabelValues("panel", "queue_state", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastTotal.WithLabelValues("public", "queue_state", "error")))
}

func TestObserveRequestAndHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/v1/queue", http.StatusOK, 15*time.Millisecond)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "/v1/queue", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, "realtime_connections 1"))
}
