package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON body written for a failed request. Code is the
// HTTP status.
type ErrorResponse struct {
	Code      int            `json:"code"`
	Message   string         `json:"message"`
	ErrorCode ErrorCode      `json:"errorCode,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Code:      e.HTTPStatus,
		Message:   e.Message,
		ErrorCode: e.Code,
		Retryable: e.Retryable,
		Details:   e.Details,
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
