package routes

import (
	"safetrails/internal/handlers"
	"safetrails/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTripRoutes sets up routes for trip lifecycle and location sampling
func SetupTripRoutes(r *gin.RouterGroup, jwtSecret string, tripHandler *handlers.TripHandler, locationHandler *handlers.LocationHandler) {
	trips := r.Group("/trips")
	trips.Use(middleware.AuthRequired(jwtSecret))
	{
		trips.POST("/", tripHandler.CreateTrip)
		trips.GET("/", tripHandler.ListTrips)
		trips.GET("/:id", tripHandler.GetTrip)
		trips.PUT("/:id/start", tripHandler.StartTrip)
		trips.PUT("/:id/end", tripHandler.EndTrip)
		trips.PUT("/:id/cancel", tripHandler.CancelTrip)
		trips.GET("/:id/stats", tripHandler.GetTripStats)
		trips.GET("/:id/trail", tripHandler.GetTripTrail)
	}

	locations := r.Group("/locations")
	locations.Use(middleware.AuthRequired(jwtSecret))
	{
		locations.POST("/", locationHandler.ReportLocation)
	}
}
