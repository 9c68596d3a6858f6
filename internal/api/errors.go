// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/builder"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/session"
	"github.com/myaccess/kiosk-console/internal/storage"
	"github.com/myaccess/kiosk-console/internal/transport"
	"github.com/myaccess/kiosk-console/internal/widget"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int                     `json:"-"`
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details string                  `json:"details,omitempty"`
	Invalid *widget.ValidationError `json:"invalid,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 error naming the widgets that failed
// validation.
func NewValidationError(invalid *widget.ValidationError) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: invalid.Error(),
		Invalid: invalid,
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// toAPIError maps domain errors onto response errors.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	}
	var invalid *widget.ValidationError
	if errors.As(err, &invalid) {
		return NewValidationError(invalid)
	}

	switch {
	case errors.Is(err, widget.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, session.ErrNoSession):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, widget.ErrReadOnly),
		errors.Is(err, widget.ErrDuplicateID):
		return NewConflictError(err.Error())
	case errors.Is(err, widget.ErrNoWriteSink),
		errors.Is(err, transport.ErrNotConnected):
		apiErr := NewServiceUnavailableError(widget.ErrNoWriteSink.Error())
		apiErr.Details = err.Error()
		return apiErr
	case errors.Is(err, widget.ErrUnknownType),
		errors.Is(err, widget.ErrNotConfigured),
		errors.Is(err, widget.ErrNoFieldName),
		errors.Is(err, widget.ErrNotContinuous),
		errors.Is(err, widget.ErrNotSlider),
		errors.Is(err, widget.ErrNotDiscrete),
		errors.Is(err, builder.ErrBadIndex),
		errors.Is(err, builder.ErrUnknownOp),
		errors.Is(err, builder.ErrInvalidStructuredValue),
		errors.Is(err, payload.ErrNotObject),
		errors.Is(err, storage.ErrInvalidDeviceID):
		return NewBadRequestError(err.Error(), nil)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	apiErr := toAPIError(err)
	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
