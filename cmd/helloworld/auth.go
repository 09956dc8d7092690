package main

import (
	"context"

	"github.com/kbukum/gowizard/auth"
	"github.com/kbukum/gowizard/bootstrap"
)

// Roles granted to the example users.
const (
	RoleBasicGuy = "BASIC_GUY"
	RoleAdmin    = "ADMIN"
)

// exampleUsers maps usernames to their roles. Every user's password is
// "secret".
var exampleUsers = map[string][]string{
	"guest":        {},
	"good-guy":     {RoleBasicGuy},
	"chief-wizard": {RoleAdmin, RoleBasicGuy},
}

// installAuth authenticates Basic credentials of the example users on every
// resource. Only the protected routes require them.
func installAuth(cfg *HelloWorldConfiguration, env *bootstrap.Environment) error {
	hasher := auth.NewHasher(cfg.Auth.Password)
	hashes := make(map[string]string, len(exampleUsers))
	for name := range exampleUsers {
		hash, err := hasher.Hash("secret")
		if err != nil {
			return err
		}
		hashes[name] = hash
	}
	lookup := func(_ context.Context, username string) (*User, string, bool, error) {
		roles, ok := exampleUsers[username]
		if !ok {
			return nil, "", false, nil
		}
		return &User{Name: username, Roles: roles}, hashes[username], true, nil
	}

	authn := auth.NewCachingAuthenticator(auth.PasswordAuthenticator[*User](lookup, hasher), cfg.Auth.CachePolicy, env.Metrics(), "basic")
	filter := auth.NewBasicFilter[*User](authn).
		WithRealm("SUPER SECRET STUFF").
		WithAuthorizer(auth.RoleAuthorizer(func(u *User) []string { return u.Roles }))
	return auth.NewBundle(filter).Run(env)
}
