// Package config builds typed configuration objects from documents.
//
// A Factory parses a YAML, JSON or TOML document into a generic tree,
// merges prefixed overrides into it, binds the tree onto the caller's
// struct using mapstructure tags, and validates the result:
//
//	type AppConfig struct {
//	    config.Configuration `yaml:",inline" mapstructure:",squash"`
//	    Template string `yaml:"template" mapstructure:"template" validate:"required"`
//	}
//
//	factory := config.NewFactory(func() *AppConfig { return &AppConfig{} })
//	cfg, err := factory.Build(config.NewFileSourceProvider(), "app.yml", overrides)
//
// Overrides are passed explicitly. A key such as
// "dw.server.applicationConnectors[0].port" replaces the value at that path
// before binding; see ApplyOverrides for the path syntax.
package config
