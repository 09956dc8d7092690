package logger

import (
	"sort"
	"sync"
)

// named holds the component loggers handed out for the current global
// logger. Replacing the global logger starts a fresh set, so components that
// look up their logger after the logging section is applied write through
// the configured output and levels.
var named = struct {
	mu      sync.Mutex
	base    *Logger
	loggers map[string]*Logger
	pinned  map[string]*Logger
}{
	loggers: map[string]*Logger{},
	pinned:  map[string]*Logger{},
}

// Register pins name to l. Get returns l regardless of the global logger.
func Register(name string, l *Logger) {
	named.mu.Lock()
	defer named.mu.Unlock()
	named.pinned[name] = l
}

// Get returns the logger of a component: the registered one, or the global
// logger tagged with name. Tagged loggers are created once per global logger.
func Get(name string) *Logger {
	base := GetGlobalLogger()
	named.mu.Lock()
	defer named.mu.Unlock()
	if l, ok := named.pinned[name]; ok {
		return l
	}
	if named.base != base {
		named.base = base
		named.loggers = map[string]*Logger{}
	}
	l, ok := named.loggers[name]
	if !ok {
		l = base.WithComponent(name)
		named.loggers[name] = l
	}
	return l
}

// Names returns the components that have a logger, sorted.
func Names() []string {
	named.mu.Lock()
	defer named.mu.Unlock()
	names := make([]string, 0, len(named.loggers)+len(named.pinned))
	seen := map[string]bool{}
	for _, m := range []map[string]*Logger{named.loggers, named.pinned} {
		for n := range m {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
