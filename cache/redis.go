package cache

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 全局Redis客户端
var (
	redisClient *redis.Client
	initOnce    sync.Once
	initialized bool
)

// InitRedis 初始化Redis连接。失败时返回错误，调用方可以选择降级运行，
// 所有依赖Redis的功能在客户端为nil时都会走直连路径。
func InitRedis() error {
	var initErr error

	initOnce.Do(func() {
		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		redisPassword := os.Getenv("REDIS_PASSWORD")

		redisDb := 0
		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				redisDb = db
			}
		}

		log.Printf("初始化Redis连接, 地址: %s", redisAddr)

		client := redis.NewClient(&redis.Options{
			Addr:        redisAddr,
			Password:    redisPassword,
			DB:          redisDb,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 3 * time.Second,
			PoolSize:    10,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := client.Ping(ctx).Result(); err != nil {
			initErr = err
			return
		}

		redisClient = client
		initialized = true
		log.Println("Redis连接初始化成功")
	})

	return initErr
}

// GetClient 获取Redis客户端，未初始化时返回错误
func GetClient() (*redis.Client, error) {
	if !initialized || redisClient == nil {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if redisClient == nil {
		return
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("关闭Redis连接失败: %v", err)
		return
	}
	log.Println("Redis连接已关闭")
}
