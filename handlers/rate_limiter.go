package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 进程内全局限流器，作为Redis滑动窗口限流之外的兜底
var globalLimiter *rate.Limiter

// InitRateLimiters 初始化全局限流器，速率可通过环境变量调整
func InitRateLimiters() {
	rps := 100.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	burst := int(rps * 2)
	globalLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// RateLimitMiddleware 全局API限流中间件
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if globalLimiter != nil && !globalLimiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
