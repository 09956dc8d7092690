package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	apperrors "github.com/kbukum/gowizard/errors"
)

// ErrCircuitOpen is returned without sending a request while the circuit of
// a client is open.
var ErrCircuitOpen = errors.New("client: circuit breaker is open")

// ErrorCode classifies a failed call.
type ErrorCode int

const (
	ErrCodeTimeout ErrorCode = iota
	ErrCodeConnection
	ErrCodeAuth
	ErrCodeNotFound
	ErrCodeRateLimit
	ErrCodeValidation
	ErrCodeServer
	ErrCodeCircuitOpen
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeConnection:
		return "connection"
	case ErrCodeAuth:
		return "auth"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeRateLimit:
		return "rate_limit"
	case ErrCodeValidation:
		return "validation"
	case ErrCodeServer:
		return "server"
	case ErrCodeCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error is a classified client error returned by the JSON helpers.
type Error struct {
	// StatusCode is 0 for transport errors.
	StatusCode int
	Code       ErrorCode
	Message    string
	Retryable  bool
	// Body is the response body of a non-2xx response.
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("client: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassifyStatus converts a response status into an *Error. It returns nil
// for 2xx statuses.
func ClassifyStatus(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Message: fmt.Sprintf("HTTP %d", status), Body: body}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrCodeAuth
	case status == http.StatusNotFound:
		e.Code = ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		e.Code, e.Retryable = ErrCodeRateLimit, true
	case status >= 400 && status < 500:
		e.Code = ErrCodeValidation
	case status >= 500:
		e.Code, e.Retryable = ErrCodeServer, true
	default:
		e.Code = ErrCodeServer
	}
	return e
}

// ClassifyError converts a transport error into an *Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return &Error{Code: ErrCodeCircuitOpen, Message: err.Error(), Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Code: ErrCodeConnection, Message: err.Error(), Err: err}
	case isTimeout(err):
		return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
	default:
		return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool { return hasCode(err, ErrCodeServer) }

// IsRetryable reports whether err may succeed when retried.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// ToAppError converts a failed call to service into the application error a
// resource returns to its own caller: timeouts become TIMEOUT (504), an
// upstream 404 becomes NOT_FOUND, 429 becomes RATE_LIMITED and every other
// failure becomes EXTERNAL_SERVICE_ERROR (502). It returns nil for nil.
func ToAppError(service string, err error) *apperrors.AppError {
	e := ClassifyError(err)
	if e == nil {
		return nil
	}
	switch e.Code {
	case ErrCodeTimeout:
		return apperrors.Timeout(service).WithCause(e)
	case ErrCodeNotFound:
		return apperrors.NotFound(service, "").WithCause(e)
	case ErrCodeRateLimit:
		return apperrors.RateLimited().WithCause(e)
	default:
		return apperrors.ExternalServiceError(service, e)
	}
}
