package cache

import (
	"fmt"
	"log"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindowRateLimiter 滑动窗口限流器。用于限制同一手机号
// 请求验证码的频率，防止短信轰炸。
type SlidingWindowRateLimiter struct {
	client     *redis.Client
	prefix     string
	windowSize time.Duration // 窗口大小
	limit      int           // 窗口内允许的最大请求数
}

// NewSlidingWindowRateLimiter 创建新的滑动窗口限流器
func NewSlidingWindowRateLimiter(prefix string, windowSize time.Duration, limit int) *SlidingWindowRateLimiter {
	client, err := GetClient()
	if err != nil {
		log.Printf("初始化限流器失败: %v", err)
		return nil
	}
	return &SlidingWindowRateLimiter{
		client:     client,
		prefix:     fmt.Sprintf("sliding_window:%s", prefix),
		windowSize: windowSize,
		limit:      limit,
	}
}

// Allow 判断某个键（手机号）的请求是否允许通过。
// Redis不可用时放行，限流只是保护措施，不是正确性依赖。
func (l *SlidingWindowRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}

	redisKey := l.prefix + ":" + key
	now := time.Now().UnixNano() / int64(time.Millisecond)
	windowStart := now - int64(l.windowSize/time.Millisecond)
	requestID := uuid.New().String()

	// 使用有序集合记录窗口内的请求
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: requestID})
	pipe.Expire(ctx, redisKey, l.windowSize)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("限流器执行失败: %v", err)
		return true
	}

	if int(countCmd.Val()) >= l.limit {
		// 被拒绝的请求不计入窗口
		l.client.ZRem(ctx, redisKey, requestID)
		return false
	}
	return true
}
