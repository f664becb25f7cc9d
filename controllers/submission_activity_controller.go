package controllers

import (
	"net/http"

	"reev-api/models"
	"reev-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type SubmissionActivityController struct {
	activities *services.SubmissionActivityService
}

func NewSubmissionActivityController(activities *services.SubmissionActivityService) *SubmissionActivityController {
	return &SubmissionActivityController{activities: activities}
}

type createSubmissionActivityRequest struct {
	Kind           models.ActivityKind     `json:"kind" binding:"required"`
	Status         models.SubmissionStatus `json:"status"`
	RequestPayload datatypes.JSON          `json:"request_payload"`
}

type updateSubmissionActivityRequest struct {
	Status         *models.SubmissionStatus `json:"status"`
	RequestPayload datatypes.JSON           `json:"request_payload"`
}

// GET /api/v1/submissionthreads/:id/activities
func (ctl *SubmissionActivityController) ListByThread(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	activities, err := ctl.activities.ListByThread(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if activities == nil {
		activities = []models.SubmissionActivity{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": activities})
}

// POST /api/v1/submissionthreads/:id/activities
func (ctl *SubmissionActivityController) Create(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req createSubmissionActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	activity, err := ctl.activities.Create(c.Request.Context(), owner, c.Param("id"), services.SubmissionActivityInput{
		Kind:           req.Kind,
		Status:         req.Status,
		RequestPayload: jsonOrNil(req.RequestPayload),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": activity})
}

// GET /api/v1/submissionactivities/:id
func (ctl *SubmissionActivityController) Get(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	activity, err := ctl.activities.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": activity})
}

// PATCH /api/v1/submissionactivities/:id
func (ctl *SubmissionActivityController) Update(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req updateSubmissionActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	activity, err := ctl.activities.Update(c.Request.Context(), owner, c.Param("id"), services.SubmissionActivityUpdate{
		Status:         req.Status,
		RequestPayload: jsonOrNil(req.RequestPayload),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": activity})
}
