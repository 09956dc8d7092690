// Package auth authenticates requests to REST resources.
//
// A Filter reads credentials from a request and turns them into a principal
// with an Authenticator. Filters are installed as gin middleware:
//
//	filter := auth.NewBasicFilter[*User](userAuthenticator).
//	    WithRealm("hello").
//	    WithAuthorizer(auth.RoleAuthorizer(func(u *User) []string { return u.Roles }))
//
//	b.AddBundle(auth.NewBundle(filter))
//
// The bundle authenticates every request that carries credentials without
// rejecting the ones that do not. Resources opt in to protection per route:
//
//	r.GET("/secret", auth.Required(), handler)
//	r.DELETE("/people/:id", auth.RolesAllowed("admin"), handler)
//
// Handlers read the principal with Principal:
//
//	user, ok := auth.Principal[*User](c)
package auth
