package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
)

func newRateLimitRouter(cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(NewRateLimiter(cfg).Middleware())
	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return engine
}

// TestRateLimiterAllowsWithinBurst 突发额度内的请求全部放行
func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	engine := newRateLimitRouter(config.RateLimitConfig{
		RequestsPerMinute: 60,
		Burst:             5,
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// TestRateLimiterRejectsBeyondBurst 超出突发额度后返回429
func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	engine := newRateLimitRouter(config.RateLimitConfig{
		RequestsPerMinute: 60,
		Burst:             2,
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		engine.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

// TestRateLimiterPerIP 不同IP互不挤占额度
func TestRateLimiterPerIP(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{
		RequestsPerMinute: 60,
		Burst:             1,
	})

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))
}

// TestRateLimiterEvictsStale 过期IP的限流器被回收
func TestRateLimiterEvictsStale(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{
		RequestsPerMinute: 60,
		Burst:             1,
	})

	limiter.allow("10.0.0.1")
	limiter.mu.Lock()
	limiter.limiters["10.0.0.1"].lastSeen = time.Now().Add(-limiterTTL - time.Minute)
	limiter.mu.Unlock()

	limiter.allow("10.0.0.2")

	limiter.mu.Lock()
	_, ok := limiter.limiters["10.0.0.1"]
	limiter.mu.Unlock()
	assert.False(t, ok)
}
