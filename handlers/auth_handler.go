package handlers

import (
	"errors"
	"log"
	"net/http"

	"ntro-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// SendOtpInput is the body for POST /api/auth/send-otp.
type SendOtpInput struct {
	Phone string `json:"phone" binding:"required"`
}

// VerifyOtpInput is the body for POST /api/auth/verify-otp.
type VerifyOtpInput struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// AdminLoginInput is the body for POST /api/admin/login.
type AdminLoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SendOtp issues an OTP challenge for an eligible phone number.
func SendOtp(c *gin.Context) {
	var input SendOtpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone := normalizePhone(input.Phone)

	// 同号码限频，防止短信轰炸
	if !otpLimiter.Allow(c.Request.Context(), phone) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many OTP requests, try again later"})
		return
	}

	// 布隆过滤器否定结果说明号码一定不在名单里，省一次查库
	if eligibilityFilter != nil {
		if may, err := eligibilityFilter.MayContain(c.Request.Context(), phone); err == nil && !may {
			c.JSON(http.StatusForbidden, gin.H{"error": service.ErrNotEligible.Error()})
			return
		}
	}

	_, err := otpSvc.RequestChallenge(c.Request.Context(), phone)
	if err != nil {
		if errors.Is(err, service.ErrNotEligible) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		log.Printf("签发验证码失败 %s: %v", phone, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send OTP"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully"})
}

// VerifyOtp validates a submitted code and returns a voter session token.
func VerifyOtp(c *gin.Context) {
	var input VerifyOtpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone := normalizePhone(input.Phone)

	token, err := otpSvc.VerifyChallenge(c.Request.Context(), phone, input.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOtp), errors.Is(err, service.ErrOtpExpired):
			// 两种失败要能区分，前端据此决定是否提示重发
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			log.Printf("核验验证码失败 %s: %v", phone, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify OTP"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// AdminLogin authenticates an administrator and returns an admin token.
func AdminLogin(c *gin.Context) {
	var input AdminLoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := authSvc.AdminLogin(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		log.Printf("管理员登录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
