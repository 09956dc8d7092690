package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/rest"
)

const (
	DefaultRealm       = "realm"
	BasicPrefix        = "Basic"
	BearerPrefix       = "Bearer"
	unauthorizedReason = "Credentials are required to access this resource."
)

// Filter authenticates requests.
type Filter interface {
	// Authenticate reads the request credentials. On success it stores the
	// principal on c and returns true. It returns false when the request
	// carries no credentials or invalid ones.
	Authenticate(c *gin.Context) (bool, error)
	// Challenge is the WWW-Authenticate value sent with 401 responses.
	Challenge() string
}

// BasicCredentials are the username and password of an HTTP Basic
// Authorization header.
type BasicCredentials struct {
	Username string
	Password string
}

// AuthFilter authenticates credentials of type C read from the
// Authorization header into principals of type P.
type AuthFilter[C, P any] struct {
	prefix        string
	realm         string
	authenticator Authenticator[C, P]
	authorizer    Authorizer[P]
	parse         func(value string) (C, bool)
	rejection     func() *apperrors.AppError
	header        string
	queryParam    string
}

// NewBasicFilter creates a filter for HTTP Basic credentials.
func NewBasicFilter[P any](a Authenticator[BasicCredentials, P]) *AuthFilter[BasicCredentials, P] {
	return newFilter(BasicPrefix, a, parseBasic)
}

// NewOAuthFilter creates a filter for bearer tokens. The token may also be
// read from a query parameter, see WithQueryParam.
func NewOAuthFilter[P any](a Authenticator[string, P]) *AuthFilter[string, P] {
	f := newFilter(BearerPrefix, a, func(v string) (string, bool) { return v, v != "" })
	f.rejection = apperrors.InvalidToken
	return f
}

func newFilter[C, P any](prefix string, a Authenticator[C, P], parse func(string) (C, bool)) *AuthFilter[C, P] {
	return &AuthFilter[C, P]{
		prefix:        prefix,
		realm:         DefaultRealm,
		authenticator: a,
		authorizer:    PermitAll[P](),
		parse:         parse,
		header:        "Authorization",
	}
}

// WithRealm sets the realm of the challenge.
func (f *AuthFilter[C, P]) WithRealm(realm string) *AuthFilter[C, P] {
	f.realm = realm
	return f
}

// WithPrefix sets the authentication scheme expected in the header.
func (f *AuthFilter[C, P]) WithPrefix(prefix string) *AuthFilter[C, P] {
	f.prefix = prefix
	return f
}

// WithAuthorizer sets the authorizer consulted by RolesAllowed. The default
// permits every role.
func (f *AuthFilter[C, P]) WithAuthorizer(a Authorizer[P]) *AuthFilter[C, P] {
	f.authorizer = a
	return f
}

// WithQueryParam makes the filter fall back to the named query parameter
// when the Authorization header is absent.
func (f *AuthFilter[C, P]) WithQueryParam(name string) *AuthFilter[C, P] {
	f.queryParam = name
	return f
}

// Challenge returns the WWW-Authenticate value.
func (f *AuthFilter[C, P]) Challenge() string {
	return fmt.Sprintf("%s realm=%q", f.prefix, f.realm)
}

// Authenticate implements Filter.
func (f *AuthFilter[C, P]) Authenticate(c *gin.Context) (bool, error) {
	value, ok := f.credentials(c.Request)
	if !ok {
		return false, nil
	}
	creds, ok := f.parse(value)
	if !ok {
		f.reject(c)
		return false, nil
	}
	principal, ok, err := f.authenticator.Authenticate(c.Request.Context(), creds)
	if err != nil {
		return false, err
	}
	if !ok {
		f.reject(c)
		return false, nil
	}
	setPrincipal(c, principal, func(ctx context.Context, role string) bool {
		return f.authorizer.Authorize(ctx, principal, role)
	})
	return true, nil
}

// reject records the error sent if the request ends up unauthenticated.
func (f *AuthFilter[C, P]) reject(c *gin.Context) {
	if f.rejection != nil {
		c.Set(rejectionContextKey, f.rejection())
	}
}

func (f *AuthFilter[C, P]) credentials(r *http.Request) (string, bool) {
	if header := r.Header.Get(f.header); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, f.prefix) {
			return "", false
		}
		return strings.TrimSpace(value), true
	}
	if f.queryParam != "" {
		if v := r.URL.Query().Get(f.queryParam); v != "" {
			return v, true
		}
	}
	return "", false
}

func parseBasic(value string) (BasicCredentials, bool) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return BasicCredentials{}, false
	}
	user, pass, found := strings.Cut(string(decoded), ":")
	if !found {
		return BasicCredentials{}, false
	}
	return BasicCredentials{Username: user, Password: pass}, true
}

// ChainedFilter tries each filter in order until one authenticates the
// request.
type ChainedFilter struct {
	filters []Filter
}

// Chain combines filters. Its challenge is the first filter's.
func Chain(filters ...Filter) *ChainedFilter {
	return &ChainedFilter{filters: filters}
}

// Authenticate implements Filter. An error from any filter stops the chain.
func (f *ChainedFilter) Authenticate(c *gin.Context) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.Authenticate(c)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Challenge implements Filter.
func (f *ChainedFilter) Challenge() string {
	if len(f.filters) == 0 {
		return fmt.Sprintf("%s realm=%q", BasicPrefix, DefaultRealm)
	}
	return f.filters[0].Challenge()
}

// Protect rejects requests the filter does not authenticate with 401.
func Protect(f Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !run(c, f) {
			return
		}
		if !authenticated(c) {
			unauthorized(c, f.Challenge())
			return
		}
		c.Next()
	}
}

// Optional authenticates requests that carry valid credentials and lets the
// others through unauthenticated. Failures to check credentials still abort
// the request.
func Optional(f Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !run(c, f) {
			return
		}
		c.Next()
	}
}

// run authenticates c with f and reports whether the chain may continue.
func run(c *gin.Context, f Filter) bool {
	c.Set(challengeContextKey, f.Challenge())
	if authenticated(c) {
		return true
	}
	if _, err := f.Authenticate(c); err != nil {
		rest.Abort(c, fmt.Errorf("auth: authenticating request: %w", err))
		return false
	}
	return true
}

// Required rejects unauthenticated requests with 401.
func Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticated(c) {
			unauthorized(c, c.GetString(challengeContextKey))
			return
		}
		c.Next()
	}
}

// RolesAllowed rejects unauthenticated requests with 401 and principals
// holding none of roles with 403.
func RolesAllowed(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticated(c) {
			unauthorized(c, c.GetString(challengeContextKey))
			return
		}
		authorize, _ := c.MustGet(authorizerContextKey).(authorizeFunc)
		for _, role := range roles {
			if authorize != nil && authorize(c.Request.Context(), role) {
				c.Next()
				return
			}
		}
		rest.RespondError(c, apperrors.Forbidden(""))
	}
}

// DenyAllRequests rejects every request with 403.
func DenyAllRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		rest.RespondError(c, apperrors.Forbidden(""))
	}
}

func unauthorized(c *gin.Context, challenge string) {
	if challenge == "" {
		challenge = fmt.Sprintf("%s realm=%q", BasicPrefix, DefaultRealm)
	}
	c.Header("WWW-Authenticate", challenge)
	if rejected, ok := c.Get(rejectionContextKey); ok {
		if appErr, ok := rejected.(*apperrors.AppError); ok {
			rest.RespondError(c, appErr)
			return
		}
	}
	rest.RespondError(c, apperrors.Unauthorized(unauthorizedReason))
}
