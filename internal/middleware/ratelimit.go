package middleware

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linkstudio/affitrack/internal/config"
	"github.com/linkstudio/affitrack/internal/metrics"
)

// RateLimitMiddleware implements token bucket rate limiting with
// separate buckets for the public tracking surface and the
// management API.
type RateLimitMiddleware struct {
	cfg           config.RateLimitConfig
	logger        *zap.Logger
	metrics       *metrics.Metrics
	publicLimiter *rate.Limiter
	mgmtLimiter   *rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:           cfg,
		logger:        logger,
		publicLimiter: rate.NewLimiter(rate.Limit(cfg.PublicRPS), cfg.PublicBurst),
		mgmtLimiter:   rate.NewLimiter(rate.Limit(cfg.MgmtRPS), cfg.MgmtBurst),
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		var limiter *rate.Limiter
		if rl.isMgmtEndpoint(r.URL.Path) {
			limiter = rl.mgmtLimiter
		} else {
			limiter = rl.publicLimiter
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(r.URL.Path)
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isMgmtEndpoint reports whether path belongs to the management
// surface. Everything else, cloaked short paths included, shares the
// larger public bucket.
func (rl *RateLimitMiddleware) isMgmtEndpoint(path string) bool {
	return matchesPath(path, rl.cfg.MgmtPaths)
}

func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
