package testutil

import (
	"context"
	"sync"
)

// Recorder collects events in the order they happen. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// RecordingManaged is a lifecycle.Managed that records "start <name>" and
// "stop <name>" events. StartErr and StopErr are returned instead of
// recording when set.
type RecordingManaged struct {
	name     string
	recorder *Recorder
	StartErr error
	StopErr  error

	mu      sync.Mutex
	running bool
}

// NewRecordingManaged creates a RecordingManaged writing to rec.
func NewRecordingManaged(name string, rec *Recorder) *RecordingManaged {
	return &RecordingManaged{name: name, recorder: rec}
}

func (m *RecordingManaged) Name() string { return m.name }

func (m *RecordingManaged) Start(context.Context) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	m.recorder.Record("start " + m.name)
	return nil
}

func (m *RecordingManaged) Stop(context.Context) error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	if m.StopErr != nil {
		return m.StopErr
	}
	m.recorder.Record("stop " + m.name)
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (m *RecordingManaged) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *RecordingManaged) String() string { return m.name }
