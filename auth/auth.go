package auth

import "context"

// Authenticator turns credentials into a principal. It returns ok=false for
// credentials that are well formed but not valid; an error means the
// credentials could not be checked at all.
type Authenticator[C, P any] interface {
	Authenticate(ctx context.Context, credentials C) (principal P, ok bool, err error)
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc[C, P any] func(ctx context.Context, credentials C) (P, bool, error)

// Authenticate calls f(ctx, credentials).
func (f AuthenticatorFunc[C, P]) Authenticate(ctx context.Context, credentials C) (P, bool, error) {
	return f(ctx, credentials)
}

// Authorizer decides whether a principal holds a role.
type Authorizer[P any] interface {
	Authorize(ctx context.Context, principal P, role string) bool
}

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc[P any] func(ctx context.Context, principal P, role string) bool

// Authorize calls f(ctx, principal, role).
func (f AuthorizerFunc[P]) Authorize(ctx context.Context, principal P, role string) bool {
	return f(ctx, principal, role)
}

// PermitAll authorizes every principal for every role.
func PermitAll[P any]() Authorizer[P] {
	return AuthorizerFunc[P](func(context.Context, P, string) bool { return true })
}

// DenyAll authorizes no principal for any role.
func DenyAll[P any]() Authorizer[P] {
	return AuthorizerFunc[P](func(context.Context, P, string) bool { return false })
}

