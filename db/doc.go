// Package db builds managed, health-checked connection pools from
// configuration.
//
//	type HelloConfig struct {
//	    config.Configuration `yaml:",inline" mapstructure:",squash"`
//	    Database db.DataSourceFactory `yaml:"database" mapstructure:"database"`
//	}
//
//	ds, err := cfg.Database.Build(env, "people")
//
// Build opens the pool, manages it in the application lifecycle, registers
// a health check running the validation query and exports pool statistics.
// The postgres (lib/pq) and sqlite3 drivers are registered by this package.
package db
