package controllers

import (
	"net/http"

	"reev-api/models"
	"reev-api/services"

	"github.com/gin-gonic/gin"
)

type SubmissionThreadController struct {
	threads *services.SubmissionThreadService
}

func NewSubmissionThreadController(threads *services.SubmissionThreadService) *SubmissionThreadController {
	return &SubmissionThreadController{threads: threads}
}

type createSubmissionThreadRequest struct {
	SubmittingOrgID  string                 `json:"submittingorg" binding:"required"`
	PrimaryVariantID string                 `json:"primary_variant_id" binding:"required"`
	DesiredPresence  models.VariantPresence `json:"desired_presence" binding:"required"`
}

type updateSubmissionThreadRequest struct {
	DesiredPresence *models.VariantPresence `json:"desired_presence"`
}

// GET /api/v1/submissionthreads?submittingorg=<id>
func (ctl *SubmissionThreadController) List(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	threads, err := ctl.threads.List(c.Request.Context(), owner, c.Query("submittingorg"))
	if err != nil {
		respondError(c, err)
		return
	}
	if threads == nil {
		threads = []models.SubmissionThread{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": threads})
}

// GET /api/v1/submissionthreads/:id
func (ctl *SubmissionThreadController) Get(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	thread, err := ctl.threads.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thread})
}

// POST /api/v1/submissionthreads
func (ctl *SubmissionThreadController) Create(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req createSubmissionThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	thread, err := ctl.threads.Create(c.Request.Context(), owner, services.SubmissionThreadInput{
		SubmittingOrgID:  req.SubmittingOrgID,
		PrimaryVariantID: req.PrimaryVariantID,
		DesiredPresence:  req.DesiredPresence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": thread})
}

// PATCH /api/v1/submissionthreads/:id
func (ctl *SubmissionThreadController) Update(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req updateSubmissionThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	thread, err := ctl.threads.Update(c.Request.Context(), owner, c.Param("id"), services.SubmissionThreadUpdate{
		DesiredPresence: req.DesiredPresence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thread})
}

// DELETE /api/v1/submissionthreads/:id
func (ctl *SubmissionThreadController) Delete(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	if err := ctl.threads.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Submission thread deleted"})
}
