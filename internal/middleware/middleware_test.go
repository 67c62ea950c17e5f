package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func requestIDHeader(id string) http.Header {
	h := http.Header{}
	h.Set(RequestIDHeader, id)
	return h
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})
	return r
}

func get(r http.Handler, header http.Header, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != nil {
		req.Header = header
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	t.Run("generated", func(t *testing.T) {
		w := get(r, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, id, body["request_id"])
	})

	t.Run("propagated", func(t *testing.T) {
		w := get(r, requestIDHeader("trace-42"), "")
		assert.Equal(t, "trace-42", w.Header().Get(RequestIDHeader))
	})
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refilled")

	assert.Equal(t, 2, rl.Clients())
	now = now.Add(limiterIdleTimeout + time.Second)
	assert.Equal(t, 2, rl.Cleanup())
	assert.Zero(t, rl.Clients())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	r := newRouter(RequestID(), rl.Middleware())

	first := get(r, nil, "192.0.2.1:1234")
	assert.Equal(t, http.StatusOK, first.Code)

	second := get(r, nil, "192.0.2.1:1234")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "3", second.Header().Get("Retry-After"))

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &apiErr))
	assert.Equal(t, "Too Many Requests", apiErr.Title)
	assert.Equal(t, models.ErrRateLimitExceeded.Error(), apiErr.Detail)
	assert.Equal(t, second.Header().Get(RequestIDHeader), apiErr.RequestID)

	other := get(r, nil, "192.0.2.99:1234")
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := newRouter(RequestID(), RequestLogger(logger))
	get(r, requestIDHeader("abc"), "")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Request completed", entry["msg"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.Equal(t, "/ping", entry["path"])
	assert.EqualValues(t, 200, entry["status"])
}
