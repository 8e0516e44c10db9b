package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/erp/recurring-billing/internal/infrastructure/logger"
	"github.com/erp/recurring-billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds configuration for the Redis-backed rate limiter
type RateLimitConfig struct {
	// Limit is the number of requests allowed per window and client
	Limit int
	// Window is the fixed window length
	Window time.Duration
	// KeyPrefix namespaces the counters, e.g. "billing:ratelimit:cron"
	KeyPrefix string
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(c *gin.Context) string
}

// RateLimiter counts requests per client in fixed windows shared by every
// API replica through Redis.
type RateLimiter struct {
	client redis.UniversalClient
	config RateLimitConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client redis.UniversalClient, cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{client: client, config: cfg, logger: logger, now: time.Now}
}

// Allow increments the client's counter for the current window and reports
// whether the request fits, with the remaining allowance.
func (rl *RateLimiter) Allow(ctx context.Context, clientKey string) (bool, int, error) {
	window := rl.now().Truncate(rl.config.Window)
	key := fmt.Sprintf("%s:%s:%d", rl.config.KeyPrefix, clientKey, window.Unix())

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rl.config.Window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	count := int(incr.Val())
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.Limit, remaining, nil
}

// Middleware rejects requests over the limit with 429. Redis failures let the
// request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.Limit <= 0 || rl.config.Window <= 0 {
			c.Next()
			return
		}
		allowed, remaining, err := rl.Allow(c.Request.Context(), rl.config.KeyFunc(c))
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse(
				dto.ErrCodeRateLimited,
				"Too many requests, please try again later",
				logger.GetRequestID(c.Request.Context()),
			))
			return
		}
		c.Next()
	}
}
