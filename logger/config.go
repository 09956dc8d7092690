package logger

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kbukum/gowizard/validation"
)

// Config contains logging configuration. It is the "logging" section of an
// application configuration document.
type Config struct {
	Level     string            `yaml:"level" mapstructure:"level" envconfig:"LEVEL" default:"info" validate:"omitempty,oneof=trace debug info warn error fatal off all"`
	Format    string            `yaml:"format" mapstructure:"format" envconfig:"FORMAT" default:"console" validate:"omitempty,oneof=json console pretty text"`
	Output    string            `yaml:"output" mapstructure:"output" envconfig:"OUTPUT" default:"stdout"`
	NoColor   bool              `yaml:"noColor" mapstructure:"noColor" envconfig:"NO_COLOR"`
	Timestamp bool              `yaml:"timestamp" mapstructure:"timestamp" envconfig:"TIMESTAMP" default:"true"`
	Caller    bool              `yaml:"caller" mapstructure:"caller" envconfig:"CALLER"`
	Loggers   map[string]string `yaml:"loggers" mapstructure:"loggers" envconfig:"LOGGERS"`

	// Writer overrides Output when set.
	Writer io.Writer `yaml:"-" mapstructure:"-" envconfig:"-"`
}

// ApplyDefaults applies default values to logging configuration.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	c.Timestamp = true
}

// Validate validates logging configuration.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	validFormats := []string{"json", "console", "pretty", "text"}
	if !contains(validFormats, strings.ToLower(c.Format)) {
		return fmt.Errorf("logging.format must be one of %v (got: %s)", validFormats, c.Format)
	}
	for name, lvl := range c.Loggers {
		if _, err := ParseLevel(lvl); err != nil {
			return fmt.Errorf("logging.loggers.%s: %w", name, err)
		}
	}
	return nil
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// ValidateSelf reports per-component levels that do not parse.
func (c *Config) ValidateSelf(v *validation.Validator) {
	for _, name := range sortedNames(c.Loggers) {
		if _, err := ParseLevel(c.Loggers[name]); err != nil {
			v.AddError("loggers["+name+"]", "must be a valid log level")
		}
	}
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
