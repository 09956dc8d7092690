package middleware

import (
	"net/http"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/util"
)

// BodySizeLimit returns middleware that restricts the request body to limit
// bytes. Requests declaring a larger Content-Length are refused with 413
// before the handler runs. A non-positive limit disables the check.
func BodySizeLimit(limit util.Size) Middleware {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit.Bytes() {
				WriteError(w, apperrors.RequestTooLarge(limit.Bytes()))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit.Bytes())
			next.ServeHTTP(w, r)
		})
	}
}
