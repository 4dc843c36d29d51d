package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/cache"
	"ntro-voting-backend/database"
	"ntro-voting-backend/handlers"
	"ntro-voting-backend/mq"
	"ntro-voting-backend/routes"
	"ntro-voting-backend/service"

	"github.com/joho/godotenv"
)

// 全局短信分发适配器
var smsDispatcher *mq.Dispatcher

func main() {
	// 加载.env（不存在时静默忽略）
	_ = godotenv.Load()

	// 初始化数据库连接
	if err := database.InitDB(); err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接，失败时降级运行
	if err := cache.InitRedis(); err != nil {
		log.Printf("警告: Redis初始化失败，相关功能降级: %v", err)
	}
	cache.InitDistLock()

	// 初始化短信分发适配器（Redis可用时走队列，否则直接发送）
	smsDispatcher = mq.NewDispatcher(consoleSMSSender)
	smsDispatcher.Initialize()

	// 令牌服务
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "ntrovote-dev-secret"
		log.Println("警告: 使用默认JWT密钥，生产环境必须设置JWT_SECRET")
	}
	expireHours := 24
	if v := os.Getenv("JWT_EXPIRE_HOURS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			expireHours = parsed
		}
	}
	tokens := auth.NewJWTService(jwtSecret, expireHours)

	// 首次启动时创建默认管理员（幂等）
	authSvc := service.NewAuthService(database.DB, tokens)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authSvc.EnsureInitialAdmin(ctx); err != nil {
		cancel()
		log.Fatalf("初始化管理员失败: %v", err)
	}

	// 用当前资格名单预热布隆过滤器
	eligibility := cache.NewEligibilityFilter()
	if eligibility != nil {
		if phones, err := authSvc.EligiblePhones(ctx); err == nil {
			if err := eligibility.Rebuild(ctx, phones); err != nil {
				log.Printf("预热资格过滤器失败: %v", err)
			}
		}
	}
	cancel()

	// 组装处理程序依赖
	handlers.InitHandlers(handlers.Deps{
		DB:          database.DB,
		Tokens:      tokens,
		Notifier:    smsDispatcher,
		Locks:       cache.GetLockService(),
		Results:     cache.NewResultsCache(time.Minute),
		Eligibility: eligibility,
		OtpLimiter:  cache.NewSlidingWindowRateLimiter("otp", time.Minute, 3),
	})

	// 设置路由并启动服务器
	router := routes.SetupRouter()
	srv := routes.StartServer(router)
	log.Println("服务器启动成功")

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	smsDispatcher.Close()
	cache.CloseRedis()
	database.CloseDB()

	log.Println("服务器优雅关闭")
}

// consoleSMSSender 开发环境的短信出口，把验证码打到日志。
// 生产环境在这里接短信网关（Twilio等）。
func consoleSMSSender(phone, body string) error {
	log.Printf("SMS to %s: %s", phone, body)
	return nil
}
