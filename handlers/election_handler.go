package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ntro-voting-backend/models"
	"ntro-voting-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uploadDir 候选人头像的本地存储目录
const uploadDir = "uploads"

// CreateElectionInput is the body for POST /api/elections.
type CreateElectionInput struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
}

// UpdateStatusInput is the body for PUT /api/elections/:id/status.
type UpdateStatusInput struct {
	Status models.ElectionStatus `json:"status" binding:"required,oneof=ONGOING CLOSED"`
}

// CreateElection creates a new election. Status always starts ONGOING.
func CreateElection(c *gin.Context) {
	var input CreateElectionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	election := models.Election{
		Title:       input.Title,
		Description: input.Description,
		StartAt:     input.StartAt,
		EndAt:       input.EndAt,
	}
	if err := electionSvc.Create(c.Request.Context(), &election); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create election"})
		return
	}

	c.JSON(http.StatusCreated, election)
}

// GetElection returns a single election with its nominees.
func GetElection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	election, err := electionSvc.Get(c.Request.Context(), id)
	if err != nil {
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, election)
}

// ListAllElections returns every election (admin view).
func ListAllElections(c *gin.Context) {
	elections, err := electionSvc.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve elections"})
		return
	}
	c.JSON(http.StatusOK, elections)
}

// ListActiveElections returns ONGOING elections (voter view).
func ListActiveElections(c *gin.Context) {
	elections, err := electionSvc.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve elections"})
		return
	}
	c.JSON(http.StatusOK, elections)
}

// AddNominee adds a nominee via multipart form; the image is optional
// and stored under uploads/ with a uuid-prefixed name.
func AddNominee(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nominee name is required"})
		return
	}

	nominee := models.Nominee{
		Name:    name,
		Details: c.PostForm("details"),
	}

	if file, err := c.FormFile("image"); err == nil {
		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
			return
		}
		filename := uuid.New().String() + "_" + filepath.Base(file.Filename)
		if err := c.SaveUploadedFile(file, filepath.Join(uploadDir, filename)); err != nil {
			log.Printf("保存头像失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
			return
		}
		nominee.ImageURL = "/images/" + filename
	}

	if err := electionSvc.AddNominee(c.Request.Context(), id, &nominee); err != nil {
		respondElectionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, nominee)
}

// DeleteNominee removes a nominee and its votes.
func DeleteNominee(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := electionSvc.DeleteNominee(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNomineeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete nominee"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Nominee deleted"})
}

// ResetElection clears all votes of an election without touching its
// status or winner.
func ResetElection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := electionSvc.ResetVotes(c.Request.Context(), id); err != nil {
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Election votes reset"})
}

// UpdateElectionStatus overwrites the election status. Reopening a
// CLOSED election is allowed.
func UpdateElectionStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := electionSvc.UpdateStatus(c.Request.Context(), id, input.Status); err != nil {
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// FinalizeElection computes the winner and closes the election.
func FinalizeElection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	election, err := electionSvc.Finalize(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyFinalized) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, election)
}

// GetElectionResults returns per-nominee vote counts in nominee order.
func GetElectionResults(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	results, err := voteSvc.ElectionResults(c.Request.Context(), id)
	if err != nil {
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// DeleteElection removes an election with its nominees and votes.
func DeleteElection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := electionSvc.Delete(c.Request.Context(), id); err != nil {
		respondElectionErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Election deleted"})
}

// parseID 解析路径里的数字ID
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return 0, false
	}
	return uint(id), true
}

// respondElectionErr 统一映射选举相关错误
func respondElectionErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrElectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNomineeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("选举操作失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
