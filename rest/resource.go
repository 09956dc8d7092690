package rest

import "github.com/gin-gonic/gin"

// Resource registers a group of routes.
type Resource interface {
	Register(r gin.IRouter)
}

// ResourceFunc adapts a function to a Resource.
type ResourceFunc func(r gin.IRouter)

// Register calls f(r).
func (f ResourceFunc) Register(r gin.IRouter) { f(r) }
