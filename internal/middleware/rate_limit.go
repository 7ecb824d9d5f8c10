package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
)

// limiterTTL 无请求IP的限流器保留时长
const limiterTTL = 10 * time.Minute

// ipLimiter 单个客户端的限流器
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端IP限流
// 机台本机UI与运维端同时访问，按IP分桶避免互相挤占
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter 创建IP限流器
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 300
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 30
	}

	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
	}
}

// Middleware 返回gin限流中间件
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "请求频率超限，请稍后重试",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow 判定该IP当前请求是否放行
func (r *RateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[ip] = entry
		r.evictStale()
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// evictStale 清理长时间无请求的IP，调用方需持锁
func (r *RateLimiter) evictStale() {
	cutoff := time.Now().Add(-limiterTTL)
	for ip, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
		}
	}
}
