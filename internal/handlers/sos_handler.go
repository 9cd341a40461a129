package handlers

import (
	"context"
	"errors"
	"io"

	"safetrails/internal/models"
	"safetrails/internal/services"
	"safetrails/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SOSHandler struct {
	sosService services.SOSService
}

func NewSOSHandler(sosService services.SOSService) *SOSHandler {
	return &SOSHandler{
		sosService: sosService,
	}
}

// TriggerSOS opens a new emergency ticket for the caller
func (h *SOSHandler) TriggerSOS(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.TriggerSOSInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	ticket, err := h.sosService.Trigger(c.Request.Context(), userID, &input)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.CreatedResponse(c, "SOS ticket created", maskTicket(ticket))
}

// GetTicket retrieves one of the caller's tickets
func (h *SOSHandler) GetTicket(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ticketID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	ticket, err := h.sosService.GetTicket(c.Request.Context(), userID, ticketID)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	utils.SuccessResponse(c, "SOS ticket retrieved successfully", maskTicket(ticket))
}

// ListTickets lists the caller's tickets, optionally filtered by status
func (h *SOSHandler) ListTickets(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	status := models.SOSStatus(c.Query("status"))

	tickets, total, err := h.sosService.ListTickets(c.Request.Context(), userID, status, params)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	masked := make([]*models.SOSRequest, len(tickets))
	for i, ticket := range tickets {
		masked[i] = maskTicket(ticket)
	}

	meta := &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Total:      total,
		Count:      len(masked),
	}
	utils.SuccessResponseWithMeta(c, "SOS tickets retrieved successfully", masked, meta)
}

// GetStats summarizes the caller's ticket history
func (h *SOSHandler) GetStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.sosService.GetStatsOverview(c.Request.Context(), userID)
	if err != nil {
		respondOutcome(c, err)
		return
	}

	masked := make([]*models.SOSRequest, len(stats.Recent))
	for i, ticket := range stats.Recent {
		masked[i] = maskTicket(ticket)
	}
	stats.Recent = masked

	utils.SuccessResponse(c, "SOS statistics retrieved successfully", stats)
}

// Acknowledge claims a new ticket for the calling operator
func (h *SOSHandler) Acknowledge(c *gin.Context) {
	operatorID, ok := currentUserID(c)
	if !ok {
		return
	}
	ticketID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	ticket, err := h.sosService.Acknowledge(c.Request.Context(), operatorID, ticketID)
	if err != nil {
		respondTicketOutcome(c, ticket, err)
		return
	}

	utils.SuccessResponse(c, "SOS ticket acknowledged", maskTicket(ticket))
}

// BeginWork marks an acknowledged ticket as actively being worked
func (h *SOSHandler) BeginWork(c *gin.Context) {
	operatorID, ok := currentUserID(c)
	if !ok {
		return
	}
	ticketID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	ticket, err := h.sosService.BeginWork(c.Request.Context(), operatorID, ticketID)
	if err != nil {
		respondTicketOutcome(c, ticket, err)
		return
	}

	utils.SuccessResponse(c, "SOS ticket in progress", maskTicket(ticket))
}

type terminateRequest struct {
	Note string `json:"note"`
}

// Resolve closes the ticket as handled
func (h *SOSHandler) Resolve(c *gin.Context) {
	h.terminate(c, "SOS ticket resolved", h.sosService.Resolve)
}

// MarkFalseAlarm closes the ticket as a false alarm
func (h *SOSHandler) MarkFalseAlarm(c *gin.Context) {
	h.terminate(c, "SOS ticket marked as false alarm", h.sosService.MarkFalseAlarm)
}

// ResolveOwn lets the owner close their own ticket
func (h *SOSHandler) ResolveOwn(c *gin.Context) {
	h.terminate(c, "SOS ticket resolved", h.sosService.ResolveOwn)
}

// MarkFalseAlarmOwn lets the owner close their own ticket as a false alarm
func (h *SOSHandler) MarkFalseAlarmOwn(c *gin.Context) {
	h.terminate(c, "SOS ticket marked as false alarm", h.sosService.MarkFalseAlarmOwn)
}

type terminateFunc func(ctx context.Context, actorID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error)

func (h *SOSHandler) terminate(c *gin.Context, message string, call terminateFunc) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	ticketID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req terminateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	ticket, err := call(c.Request.Context(), actorID, ticketID, req.Note)
	if err != nil {
		respondTicketOutcome(c, ticket, err)
		return
	}

	utils.SuccessResponse(c, message, maskTicket(ticket))
}

// CancelSOS lets the owner retract an accidental trigger while the ticket is
// still new
func (h *SOSHandler) CancelSOS(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	ticketID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	ticket, err := h.sosService.Cancel(c.Request.Context(), ownerID, ticketID, req.Reason)
	if err != nil {
		respondTicketOutcome(c, ticket, err)
		return
	}

	utils.SuccessResponse(c, "SOS ticket cancelled", maskTicket(ticket))
}

// respondTicketOutcome treats a retried transition against a terminal ticket
// as a successful no-op, returning the unchanged ticket. Everything else maps
// through the shared outcome table.
func respondTicketOutcome(c *gin.Context, ticket *models.SOSRequest, err error) {
	if errors.Is(err, services.ErrAlreadyTerminal) && ticket != nil {
		utils.SuccessResponse(c, "SOS ticket already closed", maskTicket(ticket))
		return
	}
	respondOutcome(c, err)
}

// maskTicket redacts contact phone numbers before the ticket leaves the API.
// The full numbers exist only for dispatch.
func maskTicket(ticket *models.SOSRequest) *models.SOSRequest {
	if len(ticket.ContactSnapshot) == 0 {
		return ticket
	}

	masked := *ticket
	masked.ContactSnapshot = make([]models.EmergencyContact, len(ticket.ContactSnapshot))
	for i, contact := range ticket.ContactSnapshot {
		contact.Phone = utils.MaskPhone(contact.Phone)
		masked.ContactSnapshot[i] = contact
	}
	return &masked
}
