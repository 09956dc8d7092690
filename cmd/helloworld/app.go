package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/spf13/pflag"

	"github.com/kbukum/gowizard/assets"
	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/orm"
	"github.com/kbukum/gowizard/tracing"
	"github.com/kbukum/gowizard/views"
	"github.com/kbukum/gowizard/websockets"
)

//go:embed templates
var templateFiles embed.FS

//go:embed assets
var assetFiles embed.FS

// HelloWorldApplication greets people and keeps a list of them.
type HelloWorldApplication struct {
	orm        *orm.Bundle[*HelloWorldConfiguration]
	views      *views.Bundle[*HelloWorldConfiguration]
	websockets *websockets.Bundle[*HelloWorldConfiguration]
}

// NewApplication creates the application and its bundles.
func NewApplication() *HelloWorldApplication {
	templates, _ := fs.Sub(templateFiles, "templates")
	return &HelloWorldApplication{
		orm: orm.NewBundle(func(c *HelloWorldConfiguration) *db.DataSourceFactory { return &c.Database },
			orm.WithName("hello"), orm.WithModels(&Person{})),
		views: views.NewBundle(templates, func(c *HelloWorldConfiguration) views.Config { return c.Views }),
		websockets: websockets.NewBundle(func(c *HelloWorldConfiguration) *websockets.Config { return &c.WebSockets }).
			Add("/ws/echo", echoEndpoint()),
	}
}

func (*HelloWorldApplication) Name() string { return "hello-world" }

func (*HelloWorldApplication) NewConfiguration() *HelloWorldConfiguration {
	return &HelloWorldConfiguration{}
}

func (a *HelloWorldApplication) Initialize(b *bootstrap.Bootstrap[*HelloWorldConfiguration]) {
	static, _ := fs.Sub(assetFiles, "assets")
	b.AddBundle(assets.NewBundle(static, assets.WithURIPath("/assets"), assets.WithIndexFile("index.htm")))
	b.AddConfiguredBundle(a.orm)
	b.AddConfiguredBundle(a.views)
	b.AddConfiguredBundle(a.websockets)
	b.AddConfiguredBundle(tracing.NewBundle(func(c *HelloWorldConfiguration) *tracing.Config { return &c.Tracing }))
	b.AddCommand(renderCommand())
}

func (a *HelloWorldApplication) Run(_ context.Context, cfg *HelloWorldConfiguration, env *bootstrap.Environment) error {
	template := cfg.BuildTemplate()

	env.Health().Register("template", templateHealthCheck(template))
	env.Admin().AddTask(echoTask())

	if err := installAuth(cfg, env); err != nil {
		return err
	}
	env.Rest().Register(newHelloWorldResource(template))
	env.Rest().Register(newPeopleResource(NewPersonDAO(a.orm.SessionFactory()), a.views.Registry(), env))
	env.Rest().Register(protectedResource{})
	return nil
}

func renderCommand() bootstrap.Command[*HelloWorldConfiguration] {
	return bootstrap.NewConfiguredCommand("render", "Render the template data to console",
		func(fs *pflag.FlagSet) {
			fs.StringSlice("name", nil, "names to greet")
			fs.BoolP("include-default", "i", false, "also render the template with the default name")
		},
		func(_ context.Context, _ *bootstrap.Bootstrap[*HelloWorldConfiguration], ns *bootstrap.Namespace, cfg *HelloWorldConfiguration) error {
			template := cfg.BuildTemplate()
			if include, _ := ns.Flags.GetBool("include-default"); include {
				fmt.Fprintf(ns.Stdout, "DEFAULT => %s\n", template.Render(""))
			}
			names, _ := ns.Flags.GetStringSlice("name")
			for _, name := range names {
				fmt.Fprintf(ns.Stdout, "%s => %s\n", name, template.Render(name))
			}
			return nil
		})
}
