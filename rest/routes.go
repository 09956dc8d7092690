package rest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// Route is one registered method and path.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// Routes returns the installed routes sorted by path and method.
func (e *Environment) Routes() []Route {
	e.Install()
	return SortedRoutes(e.engine.Routes())
}

// SortedRoutes converts gin routes, sorted by path and then by method
// (GET first, DELETE last).
func SortedRoutes(info gin.RoutesInfo) []Route {
	routes := make([]Route, 0, len(info))
	for _, r := range info {
		routes = append(routes, Route{Method: r.Method, Path: r.Path, Handler: formatHandlerName(r.Handler)})
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return methodOrder(routes[i].Method) < methodOrder(routes[j].Method)
	})
	return routes
}

// FormatRoutes renders routes as the startup banner, prefixing each path
// with contextPath.
func FormatRoutes(routes []Route, contextPath string) string {
	contextPath = strings.TrimSuffix(contextPath, "/")
	var b strings.Builder
	b.WriteString("The following paths were found for the configured resources:\n\n")
	if len(routes) == 0 {
		b.WriteString("    NONE\n")
	}
	for _, r := range routes {
		fmt.Fprintf(&b, "    %-7s %s (%s)\n", r.Method, contextPath+r.Path, r.Handler)
	}
	return b.String()
}

// formatHandlerName extracts a clean handler name from gin's full handler
// path, e.g. "github.com/org/app/api.(*UserResource).List-fm" becomes
// "UserResource.List".
func formatHandlerName(fullPath string) string {
	name := strings.TrimSuffix(fullPath, "-fm")

	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	name = strings.ReplaceAll(name, "(*", "")
	name = strings.ReplaceAll(name, ")", "")

	// Closures: keep the last named segment before funcN.
	if strings.Contains(name, ".func") {
		parts := strings.Split(name, ".")
		kept := parts[:0]
		for _, p := range parts {
			if strings.HasPrefix(p, "func") {
				break
			}
			kept = append(kept, p)
		}
		name = strings.Join(kept, ".")
	}

	// Drop a lowercase package prefix: "api.UserResource.List".
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 && parts[1] != "" && parts[0] == strings.ToLower(parts[0]) {
		name = parts[1]
	}
	return name
}

// methodOrder returns a sort key for HTTP methods (GET first, DELETE last).
func methodOrder(method string) int {
	switch method {
	case "GET":
		return 0
	case "POST":
		return 1
	case "PUT":
		return 2
	case "PATCH":
		return 3
	case "DELETE":
		return 4
	default:
		return 5
	}
}
