package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/validation"
)

// BindAndValidate decodes the JSON request body into a T and validates it.
// Decoding failures return a 400 AppError, oversized bodies a 413 AppError,
// and constraint failures the validation.Violations.
func BindAndValidate[T any](c *gin.Context, v *validation.StructValidator) (T, error) {
	var out T
	if err := binding.JSON.Bind(c.Request, &out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return out, apperrors.RequestTooLarge(maxErr.Limit)
		}
		return out, apperrors.MalformedBody(err)
	}
	if v == nil {
		v = validation.Default()
	}
	if violations := v.Struct(&out); !violations.Empty() {
		return out, violations
	}
	return out, nil
}

// Bind is BindAndValidate using the environment's validator. On failure it
// records the error, aborts and reports false.
func (e *Environment) Bind(c *gin.Context, out any) bool {
	if err := binding.JSON.Bind(c.Request, out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Abort(c, apperrors.RequestTooLarge(maxErr.Limit))
		} else {
			Abort(c, apperrors.MalformedBody(err))
		}
		return false
	}
	if violations := e.validator.Struct(out); !violations.Empty() {
		Abort(c, violations)
		return false
	}
	return true
}
