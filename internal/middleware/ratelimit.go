package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/jperezm/concert-reservation/internal/config"
)

// timeNow is swapped in tests to make limiter arguments deterministic.
var timeNow = time.Now

// limiterScript implements a token bucket in Redis.  Running it as a Lua
// script keeps the read-refill-take sequence atomic across instances.
var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket returns a rate-limiting middleware backed by Redis.  It is
// applied to the seat-hold endpoints, where many users hammer the same
// inventory; the bucket key combines the authenticated user (falling back
// to the client IP) with the route.  When Redis is unavailable the limiter
// fails open so reservations keep working without it.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg.Prefix, c)
			args := []interface{}{
				timeNow().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			ctx := c.Request().Context()
			vals, err := limiterScript.Run(ctx, rdb, []string{key}, args...).Result()
			if err != nil {
				c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				return next(c)
			}

			allowed, remaining, retryMs := parseLimiterReply(vals)
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if allowed {
				return next(c)
			}
			retryAfter := (retryMs + 999) / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
		}
	}
}

// buildRateKey namespaces the bucket by user (or IP for anonymous calls)
// and route.
func buildRateKey(prefix string, c echo.Context) string {
	who := c.RealIP()
	if uid, ok := c.Get("user_id").(string); ok && uid != "" {
		who = uid
	}
	return fmt.Sprintf("%s:%s:%s:%s", prefix, who, c.Request().Method, c.Path())
}

// parseLimiterReply unpacks the three integers returned by the script.
func parseLimiterReply(vals interface{}) (allowed bool, remaining, retryMs int64) {
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return true, 0, 0
	}
	toInt := func(v interface{}) int64 {
		n, _ := v.(int64)
		return n
	}
	return toInt(arr[0]) == 1, toInt(arr[1]), toInt(arr[2])
}
