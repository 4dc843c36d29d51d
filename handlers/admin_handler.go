package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"ntro-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// AddVoterInput is the body for POST /api/admin/voters.
type AddVoterInput struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
}

// ListOtps returns all outstanding OTP challenges. Fallback delivery
// path for when the SMS gateway is down.
func ListOtps(c *gin.Context) {
	challenges, err := otpSvc.ListChallenges(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list OTPs"})
		return
	}
	c.JSON(http.StatusOK, challenges)
}

// ListEligibleVoters returns the full eligibility roster.
func ListEligibleVoters(c *gin.Context) {
	voters, err := authSvc.ListEligibleVoters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list voters"})
		return
	}
	c.JSON(http.StatusOK, voters)
}

// AddEligibleVoter adds a phone number to the eligibility roster.
func AddEligibleVoter(c *gin.Context) {
	var input AddVoterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone := normalizePhone(input.Phone)

	voter, err := authSvc.AddEligibleVoter(c.Request.Context(), phone, input.Name)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyEligible) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add voter"})
		return
	}

	rebuildEligibilityFilter(c)
	c.JSON(http.StatusOK, voter)
}

// RemoveEligibleVoter removes a phone number from the roster.
func RemoveEligibleVoter(c *gin.Context) {
	phone := normalizePhone(c.Param("phone"))

	if err := authSvc.RemoveEligibleVoter(c.Request.Context(), phone); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove voter"})
		return
	}

	rebuildEligibilityFilter(c)
	c.JSON(http.StatusOK, gin.H{"message": "Voter removed"})
}

// VotingStats reports roster participation for an election.
func VotingStats(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid election ID format"})
		return
	}

	stats, err := voteSvc.Statistics(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, service.ErrElectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// rebuildEligibilityFilter 名单变更后重建布隆过滤器
func rebuildEligibilityFilter(c *gin.Context) {
	if eligibilityFilter == nil {
		return
	}
	phones, err := authSvc.EligiblePhones(c.Request.Context())
	if err != nil {
		log.Printf("读取资格名单失败，过滤器未重建: %v", err)
		return
	}
	if err := eligibilityFilter.Rebuild(c.Request.Context(), phones); err != nil {
		log.Printf("重建资格过滤器失败: %v", err)
	}
}
