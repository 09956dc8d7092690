// Package validation checks bound configuration and request entities.
//
// Struct tag validation uses go-playground/validator with field names taken
// from mapstructure (then yaml, then json) tags, so reported paths read like
// the document the value came from: "server.applicationConnectors[0].port".
// Every failure is collected; nothing stops at the first violation.
//
// # Struct Tag Validation
//
//	type HTTPConnector struct {
//	    Port int `mapstructure:"port" validate:"min=0,max=65535"`
//	}
//	violations := validation.Default().Struct(cfg)
//
// # Programmatic Validation
//
// Types implementing SelfValidating are visited after tag validation:
//
//	func (c *Pool) ValidateSelf(v *validation.Validator) {
//	    v.Custom(c.MinSize <= c.MaxSize, "minSize", "must not exceed maxSize")
//	}
package validation
