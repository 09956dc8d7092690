package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/validation"
)

// ExceptionMapper converts an error raised by a handler into a response.
// It reports whether it handled err.
type ExceptionMapper interface {
	MapError(c *gin.Context, err error) bool
}

// ExceptionMapperFunc adapts a function to an ExceptionMapper.
type ExceptionMapperFunc func(c *gin.Context, err error) bool

// MapError calls f(c, err).
func (f ExceptionMapperFunc) MapError(c *gin.Context, err error) bool { return f(c, err) }

// Abort records err for the exception mappers and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RespondError writes err's response body with its status.
func RespondError(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}

// AppErrorMapper renders *errors.AppError values. Server errors are logged.
func AppErrorMapper(log *logger.Logger) ExceptionMapper {
	return ExceptionMapperFunc(func(c *gin.Context, err error) bool {
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			return false
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			fields := requestFields(c)
			fields[logger.FieldError] = appErr.Error()
			log.Error("Server error handling a request", fields)
		}
		RespondError(c, appErr)
		return true
	})
}

// ValidationMapper renders constraint violations as 422 responses listing
// every violation.
func ValidationMapper() ExceptionMapper {
	return ExceptionMapperFunc(func(c *gin.Context, err error) bool {
		var violations validation.Violations
		if errors.As(err, &violations) {
			RespondError(c, apperrors.Validation(violations.Strings()))
			return true
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, e := range verrs {
				msgs[i] = e.Error()
			}
			RespondError(c, apperrors.Validation(msgs))
			return true
		}
		return false
	})
}

// JSONMapper renders JSON decoding failures as 400 responses.
func JSONMapper() ExceptionMapper {
	return ExceptionMapperFunc(func(c *gin.Context, err error) bool {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			RespondError(c, apperrors.RequestTooLarge(maxErr.Limit))
		case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
			errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			RespondError(c, apperrors.MalformedBody(err))
		default:
			return false
		}
		return true
	})
}

// LoggingMapper handles any error: it logs err with a fresh ID and answers
// 500 naming that ID.
func LoggingMapper(log *logger.Logger) ExceptionMapper {
	return ExceptionMapperFunc(func(c *gin.Context, err error) bool {
		id := uuid.New().String()
		fields := requestFields(c)
		fields["id"] = id
		fields[logger.FieldError] = err.Error()
		log.Error("Error handling a request", fields)
		RespondError(c, apperrors.Internal(id, err))
		return true
	})
}

func requestFields(c *gin.Context) map[string]interface{} {
	fields := map[string]interface{}{
		logger.FieldMethod: c.Request.Method,
		logger.FieldPath:   c.Request.URL.Path,
	}
	if id := c.Request.Header.Get("X-Request-Id"); id != "" {
		fields[logger.FieldRequestID] = id
	}
	return fields
}
