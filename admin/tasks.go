package admin

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kbukum/gowizard/logger"
)

// Task is an operation run on demand through POST /tasks/{name}. Anything
// written to w is returned to the caller.
type Task interface {
	Name() string
	Execute(ctx context.Context, params url.Values, w io.Writer) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context, params url.Values, w io.Writer) error
}

func (t funcTask) Name() string { return t.name }

func (t funcTask) Execute(ctx context.Context, params url.Values, w io.Writer) error {
	return t.fn(ctx, params, w)
}

// NewTask adapts a function to a Task.
func NewTask(name string, fn func(ctx context.Context, params url.Values, w io.Writer) error) Task {
	return funcTask{name: name, fn: fn}
}

// GCTask runs the garbage collector "runs" times (default 1).
func GCTask() Task {
	return NewTask("gc", func(_ context.Context, params url.Values, w io.Writer) error {
		runs := 1
		if v := params.Get("runs"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid runs %q", v)
			}
			runs = n
		}
		for i := 0; i < runs; i++ {
			fmt.Fprintln(w, "Running GC...")
			runtime.GC()
		}
		fmt.Fprintln(w, "Done!")
		return nil
	})
}

// LogLevelTask changes logger levels in levels. Parameters: "logger"
// (repeatable; empty or ROOT is the root level), "level" (omitted resets a
// named logger to its inherited level) and "duration" after which the
// previous level is restored.
func LogLevelTask(levels *logger.Levels) Task {
	return NewTask("log-level", func(_ context.Context, params url.Values, w io.Writer) error {
		names := params["logger"]
		if len(names) == 0 {
			names = []string{""}
		}

		var level zerolog.Level
		hasLevel := params.Get("level") != ""
		if hasLevel {
			lvl, err := logger.ParseLevel(params.Get("level"))
			if err != nil {
				return err
			}
			level = lvl
		}

		var duration time.Duration
		if v := params.Get("duration"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid duration %q", v)
			}
			duration = d
		}

		for _, name := range names {
			if strings.EqualFold(name, "root") {
				name = ""
			}
			if name == "" && !hasLevel {
				return fmt.Errorf("level is required for the root logger")
			}

			restore := snapshot(levels, name)
			if hasLevel {
				levels.Set(name, level)
			} else {
				levels.Reset(name)
			}

			display := name
			if display == "" {
				display = "ROOT"
			}
			shown := "inherited"
			if hasLevel {
				shown = strings.ToUpper(level.String())
			}
			if duration > 0 {
				time.AfterFunc(duration, restore)
				fmt.Fprintf(w, "Configured logging level for %s to %s for %s\n", display, shown, duration)
			} else {
				fmt.Fprintf(w, "Configured logging level for %s to %s\n", display, shown)
			}
		}
		return nil
	})
}

// snapshot returns a function restoring the current level of name.
func snapshot(levels *logger.Levels, name string) func() {
	if name == "" {
		root := levels.Root()
		return func() { levels.SetRoot(root) }
	}
	if lvl, ok := levels.Lookup(name); ok {
		return func() { levels.Set(name, lvl) }
	}
	return func() { levels.Reset(name) }
}
