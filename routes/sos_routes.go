package routes

import (
	"safetrails/internal/handlers"
	"safetrails/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSOSRoutes sets up routes for the SOS ticket workflow
func SetupSOSRoutes(r *gin.RouterGroup, jwtSecret string, sosHandler *handlers.SOSHandler) {
	// Owner-facing routes
	sos := r.Group("/sos")
	sos.Use(middleware.AuthRequired(jwtSecret))
	{
		sos.POST("/", sosHandler.TriggerSOS)
		sos.GET("/", sosHandler.ListTickets)
		sos.GET("/stats/overview", sosHandler.GetStats)
		sos.GET("/:id", sosHandler.GetTicket)
		sos.PUT("/:id/cancel", sosHandler.CancelSOS)
		sos.PUT("/:id/resolve", sosHandler.ResolveOwn)
		sos.PUT("/:id/false-alarm", sosHandler.MarkFalseAlarmOwn)
	}

	// Operator workflow routes
	operator := r.Group("/operator/sos")
	operator.Use(middleware.AuthRequired(jwtSecret), middleware.OperatorRequired())
	{
		operator.PUT("/:id/acknowledge", sosHandler.Acknowledge)
		operator.PUT("/:id/begin", sosHandler.BeginWork)
		operator.PUT("/:id/resolve", sosHandler.Resolve)
		operator.PUT("/:id/false-alarm", sosHandler.MarkFalseAlarm)
	}
}
