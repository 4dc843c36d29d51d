package handlers

import (
	"net/http"
	"runtime"
	"time"

	"ntro-voting-backend/cache"
	"ntro-voting-backend/database"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string    `json:"status"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	DBStatus     string    `json:"db_status"`
	RedisStatus  string    `json:"redis_status"`
}

// HealthCheck 提供基本健康检查端点
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func SystemStatus(c *gin.Context) {
	dbStatus := "ok"
	sqlDB, err := database.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
	}

	redisStatus := "ok"
	if client, err := cache.GetClient(); err != nil {
		redisStatus = "unavailable"
	} else if client.Ping(c.Request.Context()).Err() != nil {
		redisStatus = "error"
	}

	info := SystemInfo{
		Status:       "ok",
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		DBStatus:     dbStatus,
		RedisStatus:  redisStatus,
	}

	c.JSON(http.StatusOK, info)
}
