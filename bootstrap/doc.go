// Package bootstrap composes a gowizard application.
//
// An Application describes the service: its name, how to create an empty
// configuration, what to register while bootstrapping, and what to do once
// the configuration has been loaded. App drives it through a fixed sequence
// of states:
//
//	CREATED → INITIALIZING → INITIALIZED → RUNNING → STARTED → STOPPING → STOPPED
//
// Initialize adds bundles and commands to the Bootstrap. Run applies the
// logging configuration, builds the Environment (REST resources, servlets,
// admin tasks, health checks, managed objects), runs every bundle and then
// the application, and registers the HTTP server as the last managed object.
// Start starts managed objects in registration order; Stop stops them in
// reverse.
//
// # Quick Start
//
//	type HelloApp struct{}
//
//	func (HelloApp) Name() string                      { return "hello" }
//	func (HelloApp) NewConfiguration() *HelloConfig    { return &HelloConfig{} }
//	func (HelloApp) Initialize(b *bootstrap.Bootstrap[*HelloConfig]) {}
//	func (HelloApp) Run(ctx context.Context, cfg *HelloConfig, env *bootstrap.Environment) error {
//	    env.Rest().Register(NewHelloResource(cfg.Template))
//	    return nil
//	}
//
//	func main() { cli.Main[*HelloConfig](HelloApp{}) }
package bootstrap
