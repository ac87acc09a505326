package server

import (
	"context"
	"errors"
	"io/fs"

	"github.com/chiclooc-rgb/card-news-generator/internal/document"
	"github.com/chiclooc-rgb/card-news-generator/internal/errortypes"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/planner"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
)

// ErrorResponse represents the structure of error responses sent by the tool server
type ErrorResponse struct {
	Status     string                 `json:"status"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Error response codes
const (
	StatusCodeValidationError = "VALIDATION_ERROR"
	StatusCodePermissionError = "PERMISSION_ERROR"
	StatusCodeNotFound        = "NOT_FOUND"
	StatusCodeDatabaseError   = "DATABASE_ERROR"
	StatusCodeNetworkError    = "NETWORK_ERROR"
	StatusCodeInternalError   = "INTERNAL_ERROR"
	StatusCodeConfigError     = "CONFIG_ERROR"
	StatusCodeExternalError   = "EXTERNAL_ERROR"
	StatusCodeUnknownError    = "UNKNOWN_ERROR"
)

// classify wraps err in an AppError whose type follows from the sentinel
// or error type it carries. Errors that already are AppErrors are returned
// unchanged.
func classify(err error, message string) error {
	var appErr *errortypes.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var apiErr *genai.APIError
	switch {
	case errors.Is(err, planner.ErrEmptyDocument),
		errors.Is(err, orchestrator.ErrNoPlan),
		errors.Is(err, orchestrator.ErrEmptyPlan),
		errors.Is(err, plan.ErrUnknownPageType),
		errors.Is(err, plan.ErrNoPages),
		errors.Is(err, document.ErrTooLarge):
		return errortypes.ValidationError(err, message)
	case errors.Is(err, genai.ErrMissingAPIKey),
		errors.Is(err, planner.ErrNoGenerator):
		return errortypes.ConfigError(err, message)
	case errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, fs.ErrNotExist):
		return errortypes.NotFoundError(err, message)
	case errors.Is(err, fs.ErrPermission):
		return errortypes.PermissionError(err, message)
	case errors.As(err, &apiErr):
		return errortypes.APIError(err, message).WithField("status_code", apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return errortypes.NetworkError(err, message)
	default:
		return errortypes.InternalError(err, message)
	}
}

// errorToResponse converts an error to a standardized ErrorResponse
func errorToResponse(err error) ErrorResponse {
	var code string
	var details map[string]interface{}
	var stackTrace string
	message := err.Error()

	// Check if it's an AppError
	var appErr *errortypes.AppError
	if errors.As(err, &appErr) {
		details = appErr.Fields
		stackTrace = appErr.StackInfo

		switch appErr.Type {
		case errortypes.ErrorTypeValidation:
			code = StatusCodeValidationError
		case errortypes.ErrorTypePermission:
			code = StatusCodePermissionError
		case errortypes.ErrorTypeNotFound:
			code = StatusCodeNotFound
		case errortypes.ErrorTypeNetwork:
			code = StatusCodeNetworkError
		case errortypes.ErrorTypeDatabase:
			code = StatusCodeDatabaseError
		case errortypes.ErrorTypeInternal:
			code = StatusCodeInternalError
		case errortypes.ErrorTypeAPI, errortypes.ErrorTypeExternal:
			code = StatusCodeExternalError
		case errortypes.ErrorTypeConfig:
			code = StatusCodeConfigError
		default:
			code = StatusCodeUnknownError
		}
	} else {
		code = StatusCodeUnknownError
	}

	return ErrorResponse{
		Status:     "error",
		Code:       code,
		Message:    message,
		Details:    details,
		StackTrace: stackTrace,
	}
}
