package controllers

import (
	"errors"
	"log"
	"net/http"

	"reev-api/middleware"
	"reev-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

func currentOwner(c *gin.Context) (string, bool) {
	owner, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "user not found in context"})
		return "", false
	}
	return owner, true
}

// respondError maps service errors onto status codes. Unexpected errors are
// logged and reported without details.
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": validationErr.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, services.ErrDuplicateThread),
		errors.Is(err, services.ErrActivityLocked),
		errors.Is(err, services.ErrThreadBusy):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
	}
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
}

// jsonOrNil treats an explicit JSON null like an absent payload.
func jsonOrNil(payload datatypes.JSON) datatypes.JSON {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	return payload
}
