package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client IP using a token bucket per IP.
//
// Purpose:
// - Keep a misbehaving tablet or script from saturating the API
// - Apply a tighter budget to expensive endpoints (media upload, report
//   completion) than to ordinary reads and writes
//
// The limiter uses c.RealIP(). Behind a proxy, configure e.IPExtractor so
// X-Forwarded-For cannot be spoofed:
//
//	e.IPExtractor = echo.ExtractIPFromXFFHeader(echo.TrustPrivateNet(true))
type RateLimiter struct {
	limiters sync.Map // key -> *limiterEntry
	logger   *slog.Logger
	name     string
	limit    rate.Limit
	burst    int
	retry    time.Duration
	idle     time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// limiterEntry wraps a rate limiter with its last access time (Unix seconds).
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// NewRateLimiter creates the general per-IP limiter.
//
// Usage in server.go:
//
//	rl := middleware.NewRateLimiter(logger, cfg)
//	defer rl.Shutdown()
//	e.Use(rl.Middleware())
func NewRateLimiter(logger *slog.Logger, cfg RateLimitConfig) *RateLimiter {
	return newRateLimiter(logger, cfg, "global", rate.Limit(cfg.GlobalRate), cfg.GlobalBurst, time.Second)
}

// NewUploadRateLimiter creates the stricter limiter for upload and
// completion routes. Its rate is per minute.
func NewUploadRateLimiter(logger *slog.Logger, cfg RateLimitConfig) *RateLimiter {
	return newRateLimiter(logger, cfg, "upload", rate.Limit(cfg.UploadRate/60), cfg.UploadBurst, time.Minute)
}

func newRateLimiter(logger *slog.Logger, cfg RateLimitConfig, name string, limit rate.Limit, burst int, retry time.Duration) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &RateLimiter{
		logger: logger,
		name:   name,
		limit:  limit,
		burst:  burst,
		retry:  retry,
		idle:   cfg.IdleTimeout,
		ctx:    ctx,
		cancel: cancel,
	}
	if rl.idle <= 0 {
		rl.idle = time.Hour
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go rl.cleanup(interval)

	return rl
}

// Middleware returns 429 with Retry-After once a client's budget is spent.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", rl.describe())

			if !rl.Allow(ip) {
				rl.logger.Warn("rate limit exceeded",
					slog.String("limiter", rl.name),
					slog.String("ip", ip),
					slog.String("path", c.Path()),
					slog.String("method", c.Request().Method))

				h.Set("Retry-After", strconv.Itoa(int(rl.retry.Seconds())))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) describe() string {
	if rl.retry >= time.Minute {
		return fmt.Sprintf("%.0f/min", float64(rl.limit)*60)
	}
	return fmt.Sprintf("%.0f/s", float64(rl.limit))
}

// Allow reports whether a request for key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now().Unix()
	if e, ok := rl.limiters.Load(key); ok {
		entry := e.(*limiterEntry)
		entry.lastAccess.Store(now)
		return entry.limiter
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	entry.lastAccess.Store(now)
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry).limiter
}

// cleanup drops limiters idle for longer than the idle timeout.
func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.ctx.Done():
			rl.logger.Debug("rate limiter cleanup stopping", slog.String("limiter", rl.name))
			return
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) int {
	var removed int
	cutoff := now.Add(-rl.idle).Unix()
	rl.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastAccess.Load() < cutoff {
			rl.limiters.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		rl.logger.Info("cleaned up idle rate limiters",
			slog.String("limiter", rl.name),
			slog.Int("removed", removed))
	}
	return removed
}

// Shutdown stops the cleanup goroutine.
func (rl *RateLimiter) Shutdown() {
	if rl.cancel != nil {
		rl.cancel()
	}
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// GlobalRate is requests per second for general endpoints
	GlobalRate  float64
	GlobalBurst int

	// UploadRate is requests per minute for media upload and completion
	UploadRate  float64
	UploadBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
}

// DefaultRateLimitConfig returns default rate limit settings.
//
// Defaults:
// - Global: 50 req/sec, burst 100
// - Upload: 60 req/min, burst 20
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalRate:      50,
		GlobalBurst:     100,
		UploadRate:      60,
		UploadBurst:     20,
		CleanupInterval: time.Hour,
		IdleTimeout:     time.Hour,
	}
}
