package cache

import "errors"

var (
	// ErrRedisNotAvailable Redis不可用错误
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired 获取锁失败错误
	ErrLockNotAcquired = errors.New("could not acquire distributed lock")

	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")
)
