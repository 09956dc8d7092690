package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

type principalKey struct{}

const (
	principalContextKey  = "gowizard.auth.principal"
	authorizerContextKey = "gowizard.auth.authorizer"
	challengeContextKey  = "gowizard.auth.challenge"
	rejectionContextKey  = "gowizard.auth.rejection"
)

// authorizeFunc checks a role against the principal it was bound to.
type authorizeFunc func(ctx context.Context, role string) bool

// WithPrincipal stores a principal in ctx.
func WithPrincipal(ctx context.Context, principal any) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the principal stored in ctx, if it has type P.
func PrincipalFrom[P any](ctx context.Context) (P, bool) {
	p, ok := ctx.Value(principalKey{}).(P)
	return p, ok
}

// Principal returns the authenticated principal of the request.
func Principal[P any](c *gin.Context) (P, bool) {
	if v, ok := c.Get(principalContextKey); ok {
		p, ok := v.(P)
		return p, ok
	}
	return PrincipalFrom[P](c.Request.Context())
}

// MustPrincipal returns the authenticated principal and panics when there
// is none. Use it behind Required or RolesAllowed.
func MustPrincipal[P any](c *gin.Context) P {
	p, ok := Principal[P](c)
	if !ok {
		panic("auth: no principal of the requested type in the request")
	}
	return p
}

func setPrincipal(c *gin.Context, principal any, authorize authorizeFunc) {
	c.Set(principalContextKey, principal)
	c.Set(authorizerContextKey, authorize)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), principal))
}

func authenticated(c *gin.Context) bool {
	_, ok := c.Get(principalContextKey)
	return ok
}
