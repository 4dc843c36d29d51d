package handlers

import (
	"log"
	"strings"
	"time"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/cache"
	"ntro-voting-backend/service"

	"gorm.io/gorm"
)

// 包级服务实例，由InitHandlers注入
var (
	otpSvc      *service.OtpService
	authSvc     *service.AuthService
	electionSvc *service.ElectionService
	voteSvc     *service.VoteService
	tokenSvc    *auth.JWTService

	eligibilityFilter *cache.EligibilityFilter
	otpLimiter        *cache.SlidingWindowRateLimiter
)

// Deps bundles everything the handlers need.
type Deps struct {
	DB          *gorm.DB
	Tokens      *auth.JWTService
	Notifier    service.Notifier
	Codes       service.CodeSource
	Locks       *cache.DistributedLockService
	Results     *cache.ResultsCache
	Eligibility *cache.EligibilityFilter
	OtpLimiter  *cache.SlidingWindowRateLimiter
}

// InitHandlers wires the package-level handlers to their services.
// Must be called before the router is used.
func InitHandlers(deps Deps) {
	codes := deps.Codes
	if codes == nil {
		codes = service.RandomCodeSource{}
	}

	tokenSvc = deps.Tokens
	otpSvc = service.NewOtpService(deps.DB, codes, deps.Notifier, deps.Tokens)
	authSvc = service.NewAuthService(deps.DB, deps.Tokens)
	electionSvc = service.NewElectionService(deps.DB, deps.Locks, deps.Results)
	voteSvc = service.NewVoteService(deps.DB, deps.Results)
	eligibilityFilter = deps.Eligibility
	otpLimiter = deps.OtpLimiter

	log.Println("处理程序初始化完成")
}

// Uptime anchor for the health endpoint.
var startTime = time.Now()

// normalizePhone strips whitespace and defaults to the +91 country code
// when none is given. The stores themselves compare exact strings; this
// is the single normalization point at the HTTP boundary.
func normalizePhone(phone string) string {
	cleaned := strings.ReplaceAll(phone, " ", "")
	if cleaned == "" {
		return cleaned
	}
	if !strings.HasPrefix(cleaned, "+") {
		return "+91" + cleaned
	}
	return cleaned
}
