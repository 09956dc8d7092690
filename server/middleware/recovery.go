package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
)

// Recovery returns middleware that recovers from panics, logs the stack with
// an error ID and answers 500 with that ID in the body.
func Recovery(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				id := uuid.New().String()
				log.Error("Panic recovered", map[string]interface{}{
					"id":               id,
					logger.FieldError:  fmt.Sprintf("%v", rec),
					"stack":            string(debug.Stack()),
					logger.FieldPath:   r.URL.Path,
					logger.FieldMethod: r.Method,
				})
				WriteError(w, apperrors.Internal(id, fmt.Errorf("panic: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes err as a JSON error body with its HTTP status.
func WriteError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(err.ToResponse())
}
