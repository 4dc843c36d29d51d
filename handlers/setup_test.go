package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/database"
	"ntro-voting-backend/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOtpCode = "424242"

var testDBCounter int64

// testCodeSource hands out the same OTP every time so tests can verify it.
type testCodeSource struct{}

func (testCodeSource) Code() (string, error) {
	return testOtpCode, nil
}

// testNotifier swallows SMS dispatches.
type testNotifier struct{}

func (testNotifier) Send(phone, message string) error {
	return nil
}

// SetupTestEnvironment sets up the Gin router and in-memory SQLite database for testing.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	testing.Init()
	gin.SetMode(gin.TestMode)

	// Use an isolated in-memory SQLite per test. TranslateError mirrors
	// the production MySQL setup so duplicate-key mapping behaves the same.
	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	database.DB = db
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	// Wire handlers with deterministic OTP codes and no Redis
	InitHandlers(Deps{
		DB:       db,
		Tokens:   auth.NewJWTService("test-secret", 1),
		Notifier: testNotifier{},
		Codes:    testCodeSource{},
	})

	// Setup Router
	router := gin.New()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	// Same routes as in routes/router.go, minus the global rate limiter
	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/send-otp", SendOtp)
			authGroup.POST("/verify-otp", VerifyOtp)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", AdminLogin)

			guarded := admin.Group("")
			guarded.Use(RequireRole(auth.RoleAdmin))
			{
				guarded.GET("/otps", ListOtps)
				guarded.GET("/voters", ListEligibleVoters)
				guarded.POST("/voters", AddEligibleVoter)
				guarded.DELETE("/voters/:phone", RemoveEligibleVoter)
				guarded.GET("/elections/:id/stats", VotingStats)
			}
		}

		elections := api.Group("/elections")
		{
			elections.GET("/active", ListActiveElections)
			elections.GET("/:id", GetElection)

			managed := elections.Group("")
			managed.Use(RequireRole(auth.RoleAdmin))
			{
				managed.POST("", CreateElection)
				managed.GET("/all", ListAllElections)
				managed.DELETE("/:id", DeleteElection)
				managed.POST("/:id/nominees", AddNominee)
				managed.DELETE("/nominees/:id", DeleteNominee)
				managed.POST("/:id/reset", ResetElection)
				managed.PUT("/:id/status", UpdateElectionStatus)
				managed.POST("/:id/finalize", FinalizeElection)
				managed.GET("/:id/results", GetElectionResults)
			}
		}

		vote := api.Group("/vote")
		vote.Use(RequireRole(auth.RoleVoter))
		{
			vote.POST("", CastVote)
		}
	}

	return router, db
}

// doJSON performs a JSON request, with an optional Bearer token.
func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// adminToken logs in as the bootstrap admin and returns the token.
func adminToken(t *testing.T, router *gin.Engine, db *gorm.DB) string {
	t.Helper()

	if err := authSvc.EnsureInitialAdmin(context.Background()); err != nil {
		t.Fatalf("Failed to bootstrap admin: %v", err)
	}

	w := doJSON(router, "POST", "/api/admin/login", "", gin.H{
		"username": "admin",
		"password": "admin123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Admin login failed: %d %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	return resp["token"]
}

// voterToken runs the full OTP flow for an eligible phone and returns
// the voter session token.
func voterToken(t *testing.T, router *gin.Engine, db *gorm.DB, phone string) string {
	t.Helper()

	if err := db.Create(&models.EligibleVoter{PhoneNumber: phone, Name: "Test Voter " + phone}).Error; err != nil {
		t.Fatalf("Failed to seed eligible voter: %v", err)
	}

	w := doJSON(router, "POST", "/api/auth/send-otp", "", gin.H{"phone": phone})
	if w.Code != http.StatusOK {
		t.Fatalf("send-otp failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "POST", "/api/auth/verify-otp", "", gin.H{"phone": phone, "code": testOtpCode})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp failed: %d %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode verify response: %v", err)
	}
	return resp["token"]
}
