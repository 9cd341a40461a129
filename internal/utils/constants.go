package utils

import "time"

// Application constants
const (
	AppName    = "SafeTrails"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Trip lifecycle
	TripStalenessWindow  = 2 * time.Hour
	MaxActiveTripsPerRun = 500

	// SOS lifecycle
	SOSInactivityWindow = 72 * time.Hour
	SOSAutoResolveNote  = "Auto-resolved: no activity for 3+ days"

	// Reconciliation cadence defaults
	LocationBackfillInterval = 10 * time.Minute
	StaleTripReapInterval    = time.Hour
	SOSAutoResolveInterval   = 24 * time.Hour
	SafetyScoreInterval      = 24 * time.Hour

	// Safety score bounds
	SafetyScoreMin = 0
	SafetyScoreMax = 100
)

// Response status strings
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes surfaced to the HTTP layer
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeStateConflict    = "STATE_CONFLICT"
	CodeInvalidTripState = "INVALID_TRIP_STATE"
	CodeAlreadyTerminal  = "ALREADY_TERMINAL"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
)
