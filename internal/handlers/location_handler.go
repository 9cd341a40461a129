package handlers

import (
	"safetrails/internal/services"
	"safetrails/internal/utils"

	"github.com/gin-gonic/gin"
)

type LocationHandler struct {
	locationService services.LocationService
}

func NewLocationHandler(locationService services.LocationService) *LocationHandler {
	return &LocationHandler{
		locationService: locationService,
	}
}

// ReportLocation appends one location sample to the caller's active trip
func (h *LocationHandler) ReportLocation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.ReportLocationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	update, err := h.locationService.ReportLocation(c.Request.Context(), userID, &input)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.CreatedResponse(c, "Location recorded", update)
}
