package errors

import "net/http"

// ErrorCode is the machine-readable errorCode of an error response.
type ErrorCode string

const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeTaskNotFound     ErrorCode = "TASK_NOT_FOUND"

	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMalformedBody     ErrorCode = "MALFORMED_BODY"
	ErrCodeValidation        ErrorCode = "VALIDATION_FAILED"
	ErrCodeRequestTooLarge   ErrorCode = "REQUEST_TOO_LARGE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_MEDIA_TYPE"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// statusCodes maps the HTTP statuses the framework answers with on its own
// (routing, body limits, rate limiting) to their codes.
var statusCodes = map[int]ErrorCode{
	http.StatusBadRequest:            ErrCodeInvalidInput,
	http.StatusUnauthorized:          ErrCodeUnauthorized,
	http.StatusForbidden:             ErrCodeForbidden,
	http.StatusNotFound:              ErrCodeNotFound,
	http.StatusMethodNotAllowed:      ErrCodeMethodNotAllowed,
	http.StatusConflict:              ErrCodeConflict,
	http.StatusRequestEntityTooLarge: ErrCodeRequestTooLarge,
	http.StatusUnsupportedMediaType:  ErrCodeUnsupportedFormat,
	http.StatusUnprocessableEntity:   ErrCodeValidation,
	http.StatusTooManyRequests:       ErrCodeRateLimited,
	http.StatusServiceUnavailable:    ErrCodeServiceUnavailable,
	http.StatusGatewayTimeout:        ErrCodeTimeout,
}

// CodeForStatus returns the code of status, or INTERNAL_ERROR.
func CodeForStatus(status int) ErrorCode {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return ErrCodeInternal
}

// IsRetryableCode reports whether a client may retry after an error with
// code: the dependency was unavailable or slow, not the request wrong.
func IsRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeRateLimited,
		ErrCodeDatabaseError, ErrCodeExternalService:
		return true
	}
	return false
}
