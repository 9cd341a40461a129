package handlers

import (
	"errors"
	"net/http"

	"safetrails/internal/services"
	"safetrails/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// respondOutcome maps service outcomes onto HTTP statuses. Every lifecycle
// call funnels through here so the status contract stays in one place.
func respondOutcome(c *gin.Context, err error) {
	if verr, ok := services.AsValidationError(err); ok {
		utils.ErrorResponseWithDetails(c, http.StatusBadRequest, utils.CodeValidation, "Validation failed", verr.Fields)
		return
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, utils.CodeNotFound, "Resource not found")
	case errors.Is(err, services.ErrStateConflict):
		utils.ErrorResponse(c, http.StatusConflict, utils.CodeStateConflict, "Resource changed concurrently, re-read and retry")
	case errors.Is(err, services.ErrInvalidTripState):
		utils.ErrorResponse(c, http.StatusConflict, utils.CodeInvalidTripState, "Operation not permitted in the trip's current state")
	case errors.Is(err, services.ErrStoreUnavailable):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, utils.CodeStoreUnavailable, "Storage temporarily unavailable, retry later")
	default:
		utils.ErrorResponse(c, http.StatusInternalServerError, utils.CodeInternal, "Internal error")
	}
}

// currentUserID extracts the authenticated caller set by the auth middleware.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.UnauthorizedResponse(c)
		return primitive.NilObjectID, false
	}

	userObjectID, ok := userID.(primitive.ObjectID)
	if !ok {
		utils.UnauthorizedResponse(c)
		return primitive.NilObjectID, false
	}

	return userObjectID, true
}

// pathObjectID parses an ObjectID path parameter.
func pathObjectID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
