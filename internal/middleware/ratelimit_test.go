package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterHandle_BlocksWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now: func() time.Time {
			return now
		},
	}

	c1, _ := gin.CreateTestContext(httptest.NewRecorder())
	c1.Request = httptest.NewRequest("POST", "/api/analyze-image", nil)
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest("POST", "/api/analyze-image", nil)
	limiter.handle(c2)
	require.True(t, c2.IsAborted())
}

func TestRateLimiterHandle_SweepsOnInterval(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := base
	limiter := &rateLimiter{
		window:        2 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: time.Minute,
		now: func() time.Time {
			return now
		},
	}
	hit := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest("POST", path, nil)
		c.Request.RemoteAddr = "10.0.0.1:1234"
		limiter.handle(c)
		return rec
	}

	require.Equal(t, http.StatusOK, hit("/api/analyze-image").Code)
	require.Equal(t, base, limiter.lastSweep)
	require.Equal(t, http.StatusTooManyRequests, hit("/api/analyze-image").Code)

	// expired entries linger until the next sweep is due
	now = base.Add(5 * time.Second)
	require.Equal(t, http.StatusOK, hit("/api/upload-book").Code)
	require.Len(t, limiter.last, 2)
	require.Equal(t, base, limiter.lastSweep)

	now = base.Add(61 * time.Second)
	require.Equal(t, http.StatusOK, hit("/api/generate-courseware").Code)
	require.Equal(t, now, limiter.lastSweep)
	require.Len(t, limiter.last, 1)
	require.Contains(t, limiter.last, "10.0.0.1|0|/api/generate-courseware")

	// a blocked request still triggers a due sweep
	now = now.Add(time.Second)
	limiter.last["10.0.0.1|0|/api/upload-book"] = now.Add(-time.Hour)
	limiter.lastSweep = now.Add(-2 * time.Minute)
	require.Equal(t, http.StatusTooManyRequests, hit("/api/generate-courseware").Code)
	require.NotContains(t, limiter.last, "10.0.0.1|0|/api/upload-book")
}

func TestRateLimiterCleanupExpiredLocked_RemovesExpiredEntries(t *testing.T) {
	base := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now:           time.Now,
	}
	limiter.last["expired"] = base.Add(-20 * time.Second)
	limiter.last["active"] = base.Add(-2 * time.Second)

	limiter.mu.Lock()
	limiter.cleanupExpiredLocked(base)
	limiter.mu.Unlock()

	require.NotContains(t, limiter.last, "expired")
	require.Contains(t, limiter.last, "active")
	require.False(t, limiter.lastSweep.IsZero())
}
