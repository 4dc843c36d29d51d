package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultsCache 缓存选举计票结果，减轻热点选举的查询压力。
// 投票写入和重置都会让对应选举的缓存失效。
type ResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultsCache 创建计票结果缓存
func NewResultsCache(ttl time.Duration) *ResultsCache {
	client, err := GetClient()
	if err != nil {
		log.Printf("初始化结果缓存失败: %v", err)
		return nil
	}
	return &ResultsCache{client: client, ttl: ttl}
}

func resultsKey(electionID uint) string {
	return fmt.Sprintf("election:%d:results", electionID)
}

// Get 读取缓存的结果并反序列化到dest
func (c *ResultsCache) Get(ctx context.Context, electionID uint, dest interface{}) error {
	if c == nil || c.client == nil {
		return ErrRedisNotAvailable
	}

	data, err := c.client.Get(ctx, resultsKey(electionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set 写入结果缓存。过期时间带抖动，避免同时失效
func (c *ResultsCache) Set(ctx context.Context, electionID uint, value interface{}) error {
	if c == nil || c.client == nil {
		return ErrRedisNotAvailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	jitter := time.Duration(rand.Int63n(int64(c.ttl / 5)))
	return c.client.Set(ctx, resultsKey(electionID), data, c.ttl+jitter).Err()
}

// Invalidate 删除某次选举的缓存结果
func (c *ResultsCache) Invalidate(ctx context.Context, electionID uint) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, resultsKey(electionID)).Err(); err != nil {
		log.Printf("清除结果缓存失败: %v", err)
	}
}
