package lifecycle

import (
	"context"
	"fmt"
	"io"
)

// Managed is an object whose start and stop are driven by the Environment.
type Managed interface {
	// Start acquires resources. A returned error aborts application startup.
	Start(ctx context.Context) error

	// Stop releases resources. Errors are logged and do not prevent the
	// remaining objects from stopping.
	Stop(ctx context.Context) error
}

// Named is optionally implemented by managed objects to label log lines.
type Named interface {
	Name() string
}

// Listener observes the Environment starting and stopping.
type Listener interface {
	// Started runs after every managed object has started.
	Started(ctx context.Context)
	// Stopping runs before the first managed object is stopped.
	Stopping(ctx context.Context)
}

// ListenerFuncs adapts functions to Listener. Nil functions are skipped.
type ListenerFuncs struct {
	OnStarted  func(ctx context.Context)
	OnStopping func(ctx context.Context)
}

func (l ListenerFuncs) Started(ctx context.Context) {
	if l.OnStarted != nil {
		l.OnStarted(ctx)
	}
}

func (l ListenerFuncs) Stopping(ctx context.Context) {
	if l.OnStopping != nil {
		l.OnStopping(ctx)
	}
}

// ManagedFuncs adapts a pair of functions to Managed. Nil functions are
// no-ops.
type ManagedFuncs struct {
	name    string
	startFn func(ctx context.Context) error
	stopFn  func(ctx context.Context) error
}

// NewManagedFuncs creates a named managed object from start and stop
// functions.
func NewManagedFuncs(name string, start, stop func(ctx context.Context) error) *ManagedFuncs {
	return &ManagedFuncs{name: name, startFn: start, stopFn: stop}
}

func (m *ManagedFuncs) Name() string { return m.name }

func (m *ManagedFuncs) Start(ctx context.Context) error {
	if m.startFn == nil {
		return nil
	}
	return m.startFn(ctx)
}

func (m *ManagedFuncs) Stop(ctx context.Context) error {
	if m.stopFn == nil {
		return nil
	}
	return m.stopFn(ctx)
}

func (m *ManagedFuncs) String() string { return m.name }

// ManagedCloser closes an io.Closer when the Environment stops.
type ManagedCloser struct {
	name   string
	closer io.Closer
}

// NewManagedCloser wraps c. Start is a no-op.
func NewManagedCloser(name string, c io.Closer) *ManagedCloser {
	return &ManagedCloser{name: name, closer: c}
}

func (m *ManagedCloser) Name() string { return m.name }
func (m *ManagedCloser) Start(context.Context) error { return nil }

func (m *ManagedCloser) Stop(ctx context.Context) error {
	if err := m.closer.Close(); err != nil {
		return fmt.Errorf("close %s: %w", m.name, err)
	}
	return nil
}

func (m *ManagedCloser) String() string { return m.name }

// nameOf returns a label for m used in log fields.
func nameOf(m Managed) string {
	if n, ok := m.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
