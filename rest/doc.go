// Package rest hosts an application's REST resources on a gin engine.
//
// Resources register their routes on the environment:
//
//	env.Rest().Register(rest.ResourceFunc(func(r gin.IRouter) {
//	    r.GET("/hello-world", sayHello)
//	}))
//
// Handlers report failures with c.Error(err) (or rest.Abort). The
// environment's exception mappers turn the last error into a response:
// AppErrors keep their status, validation failures answer 422 with the
// list of violations, malformed JSON answers 400, and anything else is
// logged with an ID and answered with a generic 500.
package rest
