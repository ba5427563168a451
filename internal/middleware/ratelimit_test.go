package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jperezm/concert-reservation/internal/config"
)

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "rl",
	}
}

func holdContext(e *echo.Echo, userID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/zone-1/hold", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/zones/:id/hold")
	if userID != "" {
		c.Set("user_id", userID)
	}
	return c, rec
}

func frozenClock(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2026, time.October, 3, 12, 0, 0, 0, time.UTC)
	orig := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = orig })
	return fixed
}

func TestTokenBucket(t *testing.T) {
	e := echo.New()
	cfg := limiterConfig()
	key := "rl:user-1:POST:/v1/zones/:id/hold"

	next := func(called *bool) echo.HandlerFunc {
		return func(c echo.Context) error {
			*called = true
			return c.NoContent(http.StatusOK)
		}
	}

	scriptArgs := func(fixed time.Time) []interface{} {
		return []interface{}{
			fixed.UnixMilli(),
			cfg.Capacity,
			cfg.RefillTokens,
			cfg.RefillInterval.Milliseconds(),
			int64(cfg.TTL / time.Second),
		}
	}

	t.Run("allows while tokens remain", func(t *testing.T) {
		fixed := frozenClock(t)
		rdb, mock := redismock.NewClientMock()
		mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, scriptArgs(fixed)...).
			SetVal([]interface{}{int64(1), int64(4), int64(0)})

		c, rec := holdContext(e, "user-1")
		var called bool
		require.NoError(t, NewTokenBucket(cfg, rdb)(next(&called))(c))

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects with 429 and Retry-After when drained", func(t *testing.T) {
		fixed := frozenClock(t)
		rdb, mock := redismock.NewClientMock()
		mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, scriptArgs(fixed)...).
			SetVal([]interface{}{int64(0), int64(0), int64(700)})

		c, rec := holdContext(e, "user-1")
		var called bool
		require.NoError(t, NewTokenBucket(cfg, rdb)(next(&called))(c))

		assert.False(t, called)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails open on redis errors", func(t *testing.T) {
		fixed := frozenClock(t)
		rdb, mock := redismock.NewClientMock()
		mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, scriptArgs(fixed)...).
			SetErr(assert.AnError)

		c, rec := holdContext(e, "user-1")
		var called bool
		require.NoError(t, NewTokenBucket(cfg, rdb)(next(&called))(c))

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("passthrough when disabled or without redis", func(t *testing.T) {
		disabled := cfg
		disabled.Enabled = false
		c, _ := holdContext(e, "user-1")
		var called bool
		require.NoError(t, NewTokenBucket(disabled, nil)(next(&called))(c))
		assert.True(t, called)

		c, _ = holdContext(e, "user-1")
		called = false
		require.NoError(t, NewTokenBucket(cfg, nil)(next(&called))(c))
		assert.True(t, called)
	})
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()

	c, _ := holdContext(e, "user-1")
	assert.Equal(t, "rl:user-1:POST:/v1/zones/:id/hold", buildRateKey("rl", c))

	// anonymous requests fall back to the client address
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/zone-1/hold", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/zones/:id/hold")
	assert.Equal(t, "rl:10.0.0.9:POST:/v1/zones/:id/hold", buildRateKey("rl", c))
}
