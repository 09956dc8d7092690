package main

import (
	"context"
	"strings"

	"github.com/kbukum/gowizard/health"
)

// templateHealthCheck fails when the template drops the name it greets.
func templateHealthCheck(t Template) health.Checker {
	return health.CheckerFunc(func(context.Context) health.Result {
		if saying := t.Render("TEST"); !strings.Contains(saying, "TEST") {
			return health.Unhealthyf("template doesn't include a name: %q", saying)
		}
		return health.Healthy()
	})
}
