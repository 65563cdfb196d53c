package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingLimiter struct {
	allowed int
	err     error
	keys    []string
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return false, l.err
	}
	l.allowed++
	return l.allowed <= limit, nil
}

func serve(engine *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestPreflight(t *testing.T) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(Preflight())
	engine.POST("/api/chat", func(c *gin.Context) { c.String(http.StatusTeapot, "body") })

	w := serve(engine, http.MethodOptions, "/api/chat", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = serve(engine, http.MethodPost, "/api/chat", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCORSPreflightReturns200(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(CORSConfig{}), Preflight())
	engine.POST("/api/chat", func(c *gin.Context) {})

	w := serve(engine, http.MethodOptions, "/api/chat", http.Header{
		"Origin":                        {"null"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(engine, http.MethodGet, "/x", http.Header{RequestIDHeader: {"req-123"}})
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = serve(engine, http.MethodGet, "/x", nil)
	assert.Len(t, w.Body.String(), 36)
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{}
	engine := gin.New()
	engine.POST("/api/chat", RateLimit(RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}, limiter, nil),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/chat", nil).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/chat", nil).Code)

	w := serve(engine, http.MethodPost, "/api/chat", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, limiter.keys[0], "/api/chat:")
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	engine := gin.New()
	engine.POST("/api/chat", RateLimit(RateLimitConfig{Enabled: true, Requests: 1}, limiter, nil),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/chat", nil).Code)
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(engine, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error","details":"Something went wrong processing your request","code":"1007"}`, w.Body.String())
}
