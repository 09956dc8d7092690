package auth

import (
	"github.com/kbukum/gowizard/bootstrap"
)

// Bundle installs a Filter on every REST resource.
type Bundle struct {
	filter  Filter
	protect bool
}

// BundleOption configures a Bundle.
type BundleOption func(*Bundle)

// ProtectAll rejects every unauthenticated request instead of leaving the
// decision to Required and RolesAllowed.
func ProtectAll() BundleOption {
	return func(b *Bundle) { b.protect = true }
}

// NewBundle creates a bundle for filter.
func NewBundle(filter Filter, opts ...BundleOption) *Bundle {
	b := &Bundle{filter: filter}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bundle) Initialize(bootstrap.BootstrapView) {}

func (b *Bundle) Run(env *bootstrap.Environment) error {
	if b.protect {
		env.Rest().Use(Protect(b.filter))
	} else {
		env.Rest().Use(Optional(b.filter))
	}
	env.Logger().Debug("Authentication filter installed", map[string]interface{}{"challenge": b.filter.Challenge(), "protectAll": b.protect})
	return nil
}
