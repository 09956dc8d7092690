package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/kbukum/gowizard/lifecycle"
)

// CleanupFunc is a function that performs cleanup, typically stopping a
// managed object.
type CleanupFunc func() error

// Setup starts a managed object and returns a cleanup function.
// The cleanup function should be called (typically with defer) to stop it.
//
// Example:
//
//	cleanup, err := testutil.Setup(dataSource)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer cleanup()
func Setup(m lifecycle.Managed) (CleanupFunc, error) {
	return SetupWithContext(context.Background(), m)
}

// SetupWithContext starts a managed object with a custom context and returns
// a cleanup function.
func SetupWithContext(ctx context.Context, m lifecycle.Managed) (CleanupFunc, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return func() error { return m.Stop(ctx) }, nil
}

// THelper provides testing.T integration for easier test setup.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps a testing.TB to provide helper methods.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    testutil.T(t).Setup(dataSource)
//	    // dataSource is stopped when the test ends
//	}
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background()}
}

// WithContext sets a custom context for the helper.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts a managed object and stops it when the test ends.
func (h *THelper) Setup(m lifecycle.Managed) {
	h.t.Helper()
	if err := m.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start %s: %v", nameOf(m), err)
	}
	h.t.Cleanup(func() {
		if err := m.Stop(h.ctx); err != nil {
			h.t.Errorf("failed to stop %s: %v", nameOf(m), err)
		}
	})
}

// Environment starts every object managed by env and stops them when the
// test ends.
func (h *THelper) Environment(env *lifecycle.Environment) {
	h.t.Helper()
	if err := env.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start environment: %v", err)
	}
	h.t.Cleanup(func() {
		if err := env.Stop(h.ctx); err != nil {
			h.t.Errorf("failed to stop environment: %v", err)
		}
	})
}

func nameOf(m lifecycle.Managed) string {
	if n, ok := m.(lifecycle.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}
