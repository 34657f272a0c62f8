package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

// The window starts with the first hit; the script returns the hit count
// and the milliseconds left in the window.
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

const rateLimitPrefix = "ratelimit:ip:"

// RedisLimiter is a fixed window counter per key shared by every replica.
type RedisLimiter struct {
	client  redis.UniversalClient
	script  *redis.Script
	limit   int
	window  time.Duration
	timeout time.Duration
}

// NewRedisLimiter returns nil when client is nil or the limit is disabled;
// a nil limiter allows everything.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	return &RedisLimiter{
		client:  client,
		script:  redis.NewScript(rateLimitScript),
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
	}
}

// Allow counts one hit for key and reports whether it is within the limit
// and, if not, how many seconds remain in the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	if l == nil || key == "" {
		return true, 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.script.Run(ctx, l.client, []string{rateLimitPrefix + key}, l.window.Milliseconds(), l.limit).Int64Slice()
	if err != nil {
		return true, 0, err
	}
	if len(res) != 2 || res[0] <= int64(l.limit) {
		return true, 0, nil
	}
	retry := (res[1] + 999) / 1000
	if retry < 1 {
		retry = 1
	}
	return false, retry, nil
}

// RateLimit limits requests per client IP. Redis failures let the request
// through; the per phone cooldown still applies.
func RateLimit(l *RedisLimiter, m *metrics.Metrics, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ok, retry, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !ok {
			m.RateLimited()
			abortRateLimited(c, retry)
			return
		}
		c.Next()
	}
}
