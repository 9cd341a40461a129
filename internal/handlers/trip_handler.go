package handlers

import (
	"errors"
	"io"

	"safetrails/internal/models"
	"safetrails/internal/services"
	"safetrails/internal/utils"

	"github.com/gin-gonic/gin"
)

type TripHandler struct {
	tripService     services.TripService
	locationService services.LocationService
}

func NewTripHandler(tripService services.TripService, locationService services.LocationService) *TripHandler {
	return &TripHandler{
		tripService:     tripService,
		locationService: locationService,
	}
}

// CreateTrip registers a new planned trip for the caller
func (h *TripHandler) CreateTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.CreateTripInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), userID, &input)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.CreatedResponse(c, "Trip created successfully", trip)
}

// GetTrip retrieves one of the caller's trips
func (h *TripHandler) GetTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	trip, err := h.tripService.GetTrip(c.Request.Context(), userID, tripID)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip retrieved successfully", trip)
}

// ListTrips lists the caller's trips, optionally filtered by status
func (h *TripHandler) ListTrips(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	status := models.TripStatus(c.Query("status"))

	trips, total, err := h.tripService.ListTrips(c.Request.Context(), userID, status, params)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Total:      total,
		Count:      len(trips),
	}
	utils.SuccessResponseWithMeta(c, "Trips retrieved successfully", trips, meta)
}

type tripTransitionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StartTrip moves a planned trip to active and records the departure sample
func (h *TripHandler) StartTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req tripTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	trip, err := h.tripService.StartTrip(c.Request.Context(), userID, tripID, req.Latitude, req.Longitude)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip started successfully", trip)
}

// EndTrip moves an active trip to completed and records the arrival sample
func (h *TripHandler) EndTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req tripTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	trip, err := h.tripService.EndTrip(c.Request.Context(), userID, tripID, req.Latitude, req.Longitude)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip completed successfully", trip)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelTrip cancels a planned or active trip
func (h *TripHandler) CancelTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	// The body is optional; cancellation without a reason is fine.
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	trip, err := h.tripService.CancelTrip(c.Request.Context(), userID, tripID, req.Reason)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip cancelled successfully", trip)
}

// GetTripStats summarizes the trip: duration, trail distance, sample and
// ticket counts
func (h *TripHandler) GetTripStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	stats, err := h.tripService.GetTripStats(c.Request.Context(), userID, tripID)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip stats retrieved successfully", stats)
}

// GetTripTrail returns the trip's location trail in chronological order
func (h *TripHandler) GetTripTrail(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	tripID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	updates, err := h.locationService.GetTripTrail(c.Request.Context(), userID, tripID, int64(utils.MaxPageSize))
	if err != nil {
		respondOutcome(c, err)
		return
	}

	meta := &utils.Meta{Count: len(updates)}
	utils.SuccessResponseWithMeta(c, "Trip trail retrieved successfully", updates, meta)
}
