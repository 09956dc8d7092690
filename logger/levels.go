package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ParseLevel parses a level name. "off" disables logging and "all" enables
// every level.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return zerolog.Disabled, nil
	case "all":
		return zerolog.TraceLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// Levels holds the root level and per-component overrides shared by every
// logger derived from the same root. It is safe for concurrent use.
type Levels struct {
	mu    sync.RWMutex
	root  zerolog.Level
	named map[string]zerolog.Level
}

// NewLevels creates a level table with the given root level.
func NewLevels(root zerolog.Level) *Levels {
	allow(root)
	return &Levels{root: root, named: make(map[string]zerolog.Level)}
}

// Root returns the root level.
func (l *Levels) Root() zerolog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.root
}

// SetRoot changes the root level.
func (l *Levels) SetRoot(lvl zerolog.Level) {
	allow(lvl)
	l.mu.Lock()
	l.root = lvl
	l.mu.Unlock()
}

// Set sets the level of a named component. An empty name sets the root level.
func (l *Levels) Set(name string, lvl zerolog.Level) {
	if name == "" {
		l.SetRoot(lvl)
		return
	}
	allow(lvl)
	l.mu.Lock()
	l.named[name] = lvl
	l.mu.Unlock()
}

// Reset removes the override of a named component.
func (l *Levels) Reset(name string) {
	l.mu.Lock()
	delete(l.named, name)
	l.mu.Unlock()
}

// Effective returns the level for a component. Dotted names inherit from
// their closest configured ancestor ("db.pool" falls back to "db").
func (l *Levels) Effective(name string) zerolog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for n := name; n != ""; {
		if lvl, ok := l.named[n]; ok {
			return lvl
		}
		i := strings.LastIndex(n, ".")
		if i < 0 {
			break
		}
		n = n[:i]
	}
	return l.root
}

// Lookup returns the override of a named component, if any.
func (l *Levels) Lookup(name string) (zerolog.Level, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lvl, ok := l.named[name]
	return lvl, ok
}

// Named returns the names that carry an override, sorted.
func (l *Levels) Named() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.named))
	for n := range l.named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// allow lowers zerolog's process-wide floor so trace messages reach the
// per-logger check.
func allow(lvl zerolog.Level) {
	if lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
	}
}
