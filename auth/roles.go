package auth

import (
	"context"
	"strings"
)

// RoleAuthorizer authorizes a principal when one of the roles returned by
// roles matches the required role. Roles may be "resource:action" patterns
// with "*" wildcards, so "people:*" grants "people:write".
func RoleAuthorizer[P any](roles func(P) []string) Authorizer[P] {
	return AuthorizerFunc[P](func(_ context.Context, p P, role string) bool {
		return MatchAny(roles(p), role)
	})
}

// GrantAuthorizer expands each of the principal's roles through grants
// before matching:
//
//	auth.GrantAuthorizer(rolesOf, map[string][]string{
//	    "admin":  {"*:*"},
//	    "editor": {"people:*", "reports:read"},
//	})
//
// Roles without an entry grant nothing.
func GrantAuthorizer[P any](roles func(P) []string, grants map[string][]string) Authorizer[P] {
	return AuthorizerFunc[P](func(_ context.Context, p P, required string) bool {
		for _, role := range roles(p) {
			if MatchAny(grants[role], required) {
				return true
			}
		}
		return false
	})
}

// MatchPattern reports whether pattern grants required. Patterns are plain
// names or "resource:action" pairs where either half may be "*".
func MatchPattern(pattern, required string) bool {
	if pattern == required || pattern == "*" || pattern == "*:*" {
		return true
	}
	pr, pa, pok := strings.Cut(pattern, ":")
	rr, ra, rok := strings.Cut(required, ":")
	if !pok || !rok {
		return false
	}
	return wildcard(pr, rr) && wildcard(pa, ra)
}

// MatchAny reports whether any of patterns grants required.
func MatchAny(patterns []string, required string) bool {
	for _, p := range patterns {
		if MatchPattern(p, required) {
			return true
		}
	}
	return false
}

func wildcard(pattern, value string) bool {
	return pattern == "*" || pattern == value
}
