package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidPassword  = &AppError{http.StatusUnauthorized, "INVALID_PASSWORD", "Invalid access password"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrUnitNameExists    = &AppError{http.StatusConflict, "UNIT_NAME_EXISTS", "A unit with this name already exists"}
	ErrUnitHasChildren   = &AppError{http.StatusUnprocessableEntity, "UNIT_HAS_CHILDREN", "Unit still has linked child units"}
	ErrNotLatestReading  = &AppError{http.StatusUnprocessableEntity, "NOT_LATEST_READING", "Only the latest reading of a unit can be modified"}
	ErrDuplicateReading  = &AppError{http.StatusConflict, "DUPLICATE_READING", "A reading for this unit and date already exists"}
	ErrOutOfOrderReading = &AppError{http.StatusUnprocessableEntity, "OUT_OF_ORDER_READING", "Reading date must be after the unit's latest reading"}
	ErrSelfParent        = &AppError{http.StatusUnprocessableEntity, "SELF_PARENT_NOT_ALLOWED", "A unit cannot be its own parent"}
	ErrParentCycle       = &AppError{http.StatusUnprocessableEntity, "PARENT_CYCLE", "A unit with children cannot be linked under a parent"}
	ErrParentDepth       = &AppError{http.StatusUnprocessableEntity, "PARENT_DEPTH_EXCEEDED", "The chosen parent is itself linked to a parent"}
	ErrParentNotFound    = &AppError{http.StatusUnprocessableEntity, "PARENT_NOT_FOUND", "Parent unit not found"}
	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount is not valid for this operation"}
	ErrVersionConflict   = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}

	ErrWeatherUnavailable = &AppError{http.StatusBadGateway, "WEATHER_UNAVAILABLE", "Weather service did not return a temperature"}
)
