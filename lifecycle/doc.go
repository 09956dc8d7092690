// Package lifecycle coordinates the start and stop of managed objects.
//
// An Environment holds managed objects in registration order. Start runs
// them in that order and Stop unwinds the started ones in reverse, so an
// object registered after its dependencies stops before them. Executor
// pools built through the Environment are registered automatically and
// drained within their shutdown time when the Environment stops.
//
//	env := lifecycle.NewEnvironment(lifecycle.WithLogger(log))
//	env.Manage(db)
//	pool, err := env.ExecutorService("mailer-%d").MinThreads(1).MaxThreads(4).Build()
//	if err := env.Start(ctx); err != nil { ... }
//	defer env.Stop(ctx)
package lifecycle
