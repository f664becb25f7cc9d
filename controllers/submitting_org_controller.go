package controllers

import (
	"net/http"
	"time"

	"reev-api/models"
	"reev-api/services"

	"github.com/gin-gonic/gin"
)

type SubmittingOrgController struct {
	orgs *services.SubmittingOrgService
}

func NewSubmittingOrgController(orgs *services.SubmittingOrgService) *SubmittingOrgController {
	return &SubmittingOrgController{orgs: orgs}
}

type submittingOrgRequest struct {
	Label           *string `json:"label"`
	ClinVarAPIToken *string `json:"clinvar_api_token"`
}

// submittingOrgResponse never carries the token itself.
type submittingOrgResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Label     string    `json:"label"`
	HasToken  bool      `json:"has_clinvar_api_token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSubmittingOrgResponse(org *models.SubmittingOrg) submittingOrgResponse {
	return submittingOrgResponse{
		ID:        org.ID,
		Owner:     org.OwnerID,
		Label:     org.Label,
		HasToken:  org.HasToken(),
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
}

// GET /api/v1/submittingorgs
func (ctl *SubmittingOrgController) List(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	orgs, err := ctl.orgs.List(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	data := make([]submittingOrgResponse, 0, len(orgs))
	for i := range orgs {
		data = append(data, newSubmittingOrgResponse(&orgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// GET /api/v1/submittingorgs/:id
func (ctl *SubmittingOrgController) Get(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	org, err := ctl.orgs.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": newSubmittingOrgResponse(org)})
}

// POST /api/v1/submittingorgs
func (ctl *SubmittingOrgController) Create(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req submittingOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	org, err := ctl.orgs.Create(c.Request.Context(), owner, services.SubmittingOrgInput{
		Label:           req.Label,
		ClinVarAPIToken: req.ClinVarAPIToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": newSubmittingOrgResponse(org)})
}

// PATCH /api/v1/submittingorgs/:id
func (ctl *SubmittingOrgController) Update(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	var req submittingOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	org, err := ctl.orgs.Update(c.Request.Context(), owner, c.Param("id"), services.SubmittingOrgInput{
		Label:           req.Label,
		ClinVarAPIToken: req.ClinVarAPIToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": newSubmittingOrgResponse(org)})
}

// DELETE /api/v1/submittingorgs/:id
func (ctl *SubmittingOrgController) Delete(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}
	if err := ctl.orgs.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Submitting org deleted"})
}
