package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		router := NewRouter(func() Health {
			return Health{SocketConnected: true, ChannelState: "ready", Pending: 2}
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		var h Health
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "ready", h.ChannelState)
		assert.Equal(t, 2, h.Pending)
	})

	t.Run("disconnected", func(t *testing.T) {
		router := NewRouter(func() Health { return Health{} })
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	SocketEventsTotal.WithLabelValues("msg:new").Inc()

	router := NewRouter(func() Health { return Health{SocketConnected: true} })
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crmchat_socket_events_total{event="msg:new"}`)
}
