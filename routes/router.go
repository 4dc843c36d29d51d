package routes

import (
	"log"
	"net/http"
	"os"
	"time"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由。调用前必须先完成handlers.InitHandlers。
func SetupRouter() *gin.Engine {
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 初始化限流器
	handlers.InitRateLimiters()

	// 候选人头像静态文件
	router.Static("/images", "./uploads")

	api := router.Group("/api")
	{
		// 全局API限流中间件
		api.Use(handlers.RateLimitMiddleware())

		// 健康检查端点
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", handlers.SystemStatus)

		// 选民认证
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/send-otp", handlers.SendOtp)
			authGroup.POST("/verify-otp", handlers.VerifyOtp)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/login", handlers.AdminLogin)

			guarded := admin.Group("")
			guarded.Use(handlers.RequireRole(auth.RoleAdmin))
			{
				guarded.GET("/otps", handlers.ListOtps)
				guarded.GET("/voters", handlers.ListEligibleVoters)
				guarded.POST("/voters", handlers.AddEligibleVoter)
				guarded.DELETE("/voters/:phone", handlers.RemoveEligibleVoter)
				guarded.GET("/elections/:id/stats", handlers.VotingStats)
			}
		}

		// 选举
		elections := api.Group("/elections")
		{
			// 公共读取端点
			elections.GET("/active", handlers.ListActiveElections)
			elections.GET("/:id", handlers.GetElection)

			// 管理员操作
			managed := elections.Group("")
			managed.Use(handlers.RequireRole(auth.RoleAdmin))
			{
				managed.POST("", handlers.CreateElection)
				managed.GET("/all", handlers.ListAllElections)
				managed.DELETE("/:id", handlers.DeleteElection)
				managed.POST("/:id/nominees", handlers.AddNominee)
				managed.DELETE("/nominees/:id", handlers.DeleteNominee)
				managed.POST("/:id/reset", handlers.ResetElection)
				managed.PUT("/:id/status", handlers.UpdateElectionStatus)
				managed.POST("/:id/finalize", handlers.FinalizeElection)
				managed.GET("/:id/results", handlers.GetElectionResults)
			}
		}

		// 投票
		vote := api.Group("/vote")
		vote.Use(handlers.RequireRole(auth.RoleVoter))
		{
			vote.POST("", handlers.CastVote)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine) *Server {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090"
	}

	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
