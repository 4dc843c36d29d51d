package handlers

import (
	"errors"
	"net/http"

	"ntro-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// CastVoteInput is the body for POST /api/vote.
type CastVoteInput struct {
	ElectionID uint `json:"electionId" binding:"required"`
	NomineeID  uint `json:"nomineeId" binding:"required"`
}

// CastVote records a single ballot for the authenticated voter.
func CastVote(c *gin.Context) {
	var input CastVoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 会话令牌里的subject就是核验过的手机号
	phone := c.GetString(ContextSubject)

	vote, err := voteSvc.CastVote(c.Request.Context(), phone, input.ElectionID, input.NomineeID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVoted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrElectionClosed):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrElectionNotFound),
			errors.Is(err, service.ErrNomineeNotFound),
			errors.Is(err, service.ErrVoterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cast vote"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Vote cast successfully", "vote": vote})
}
