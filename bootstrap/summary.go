package bootstrap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/version"
)

// Summary describes a started application.
type Summary struct {
	name            string
	version         string
	startupDuration time.Duration
	env             *Environment
}

// NewSummary creates a summary of env.
func NewSummary(name string, startupDuration time.Duration, env *Environment) *Summary {
	return &Summary{
		name:            name,
		version:         version.Get().Short(),
		startupDuration: startupDuration,
		env:             env,
	}
}

// Display prints the summary, running health checks for a live status.
func (s *Summary) Display(ctx context.Context, w io.Writer) {
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs\n\n", s.name, s.version, s.startupDuration.Seconds())

	if srv := s.env.Server(); srv != nil {
		fmt.Fprintf(w, "📊 Server\n")
		fmt.Fprintf(w, "   ├── application: :%d%s\n", srv.ApplicationPort(), srv.ApplicationContextPath())
		fmt.Fprintf(w, "   └── admin: :%d%s\n\n", srv.AdminPort(), srv.AdminContextPath())
	}

	managed := s.env.Lifecycle().Managed()
	fmt.Fprintf(w, "📦 Managed (%d)\n", len(managed))
	for i, m := range managed {
		fmt.Fprintf(w, "   %s %s\n", branch(i, len(managed)), managedName(m))
	}

	routes := s.env.Rest().Routes()
	if len(routes) > 0 {
		fmt.Fprintf(w, "\n🌐 Routes (%d)\n", len(routes))
		for i, r := range routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", branch(i, len(routes)), r.Method, r.Path, r.Handler)
		}
	}

	tasks := s.env.Admin().Tasks()
	if len(tasks) > 0 {
		fmt.Fprintf(w, "\n🔧 Tasks (%d)\n", len(tasks))
		for i, t := range tasks {
			fmt.Fprintf(w, "   %s %s\n", branch(i, len(tasks)), t)
		}
	}

	results := s.env.Health().RunAll(ctx)
	if len(results) > 0 {
		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "\n🏥 Health Check\n")
		for i, name := range names {
			r := results[name]
			msg := ""
			if r.Message != "" {
				msg = fmt.Sprintf(" (%s)", r.Message)
			}
			fmt.Fprintf(w, "   %s %s %s%s\n", branch(i, len(names)), healthIcon(r), name, msg)
		}
		fmt.Fprintf(w, "\n")
		if health.AllHealthy(results) {
			fmt.Fprintf(w, "✅ All checks healthy (%d/%d)\n", len(names), len(names))
		} else {
			fmt.Fprintf(w, "⚠️  Some checks have issues (%d/%d healthy)\n", countHealthy(results), len(names))
		}
	}

	fmt.Fprintf(w, "\n")
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func managedName(m lifecycle.Managed) string {
	if n, ok := m.(lifecycle.Named); ok {
		return n.Name()
	}
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}

func healthIcon(r health.Result) string {
	if r.Healthy {
		return "✅"
	}
	return "❌"
}

func countHealthy(results map[string]health.Result) int {
	n := 0
	for _, r := range results {
		if r.Healthy {
			n++
		}
	}
	return n
}
