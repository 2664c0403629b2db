package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func serve(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.GlobalRate = 1
	cfg.GlobalBurst = 2

	rl := NewRateLimiter(testLogger, cfg)
	t.Cleanup(rl.Shutdown)

	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	e.Use(rl.Middleware())
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "10.0.0.1").Code)

	rec := serve(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusNoContent, serve(e, "10.0.0.2").Code)
}

func TestRateLimiter_Sweep(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.IdleTimeout = time.Minute
	rl := NewUploadRateLimiter(testLogger, cfg)
	t.Cleanup(rl.Shutdown)

	require.True(t, rl.Allow("a"))
	assert.Zero(t, rl.sweep(time.Now()))
	assert.Equal(t, 1, rl.sweep(time.Now().Add(2*time.Minute)))
}

func TestRequestIDMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware(testLogger))

	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = GetRequestID(c)
		assert.Equal(t, seen, handover.RequestIDFromContext(c.Request().Context()))
		assert.NotNil(t, GetRequestLogger(c))
		return c.NoContent(http.StatusNoContent)
	})

	t.Run("generated", func(t *testing.T) {
		rec := serve(e, "10.0.0.1")
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("client supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(echo.HeaderXRequestID, "tablet-42.7")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, "tablet-42.7", seen)
		assert.Equal(t, "tablet-42.7", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("malformed is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(echo.HeaderXRequestID, "bad id\n")
		e.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, "bad id\n", seen)
		assert.NotEmpty(t, seen)
	})
}

func TestRecordersBeforeInit(t *testing.T) {
	// Must not panic when metrics were never initialised.
	if reportsTotal == nil {
		RecordReportCompletion(1, nil)
		RecordNotification("customer", true)
		RecordMediaUpload("photo", nil)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, "10.0.0.1").Code)
	RecordReportCompletion(0.5, nil)
	RecordQueueJobMetrics("phase_notification", 0.1, nil)
}
