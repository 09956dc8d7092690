package main

import (
	"fmt"

	"github.com/kbukum/gowizard/auth"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/tracing"
	"github.com/kbukum/gowizard/views"
	"github.com/kbukum/gowizard/websockets"
)

// HelloWorldConfiguration is the configuration of the example service.
type HelloWorldConfiguration struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`

	// Template is a format string with a single %s verb.
	Template    string `yaml:"template" mapstructure:"template" validate:"required,contains=%s"`
	DefaultName string `yaml:"defaultName" mapstructure:"defaultName" validate:"required"`

	Database   db.DataSourceFactory `yaml:"database" mapstructure:"database"`
	Auth       auth.Config          `yaml:"auth" mapstructure:"auth"`
	Views      views.Config         `yaml:"views" mapstructure:"views"`
	Tracing    tracing.Config       `yaml:"tracing" mapstructure:"tracing"`
	WebSockets websockets.Config    `yaml:"webSockets" mapstructure:"webSockets"`
}

// ApplyDefaults greets strangers and keeps people in an in-memory sqlite
// database.
func (c *HelloWorldConfiguration) ApplyDefaults() {
	c.Configuration.ApplyDefaults()
	if c.Template == "" {
		c.Template = "Hello, %s!"
	}
	if c.DefaultName == "" {
		c.DefaultName = "Stranger"
	}
	if c.Database.Driver == "" && c.Database.URL == "" {
		c.Database.Driver = "sqlite3"
		c.Database.URL = "file::memory:"
		c.Database.MaxSize, c.Database.MinSize = 1, 1
	}
	c.Database.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.WebSockets.ApplyDefaults()
}

// BuildTemplate returns the greeting template.
func (c *HelloWorldConfiguration) BuildTemplate() Template {
	return Template{content: c.Template, defaultName: c.DefaultName}
}

// Template formats greetings.
type Template struct {
	content     string
	defaultName string
}

// Render greets name, or the default name when it is empty.
func (t Template) Render(name string) string {
	if name == "" {
		name = t.defaultName
	}
	return fmt.Sprintf(t.content, name)
}
