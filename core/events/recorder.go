package events

import "sync"

// Recorder retains the most recent events in memory so callers (RPC, tests)
// can inspect what the engines emitted. Older events are dropped once the
// capacity is exceeded.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	events   []Event
}

const defaultRecorderCapacity = 1024

// NewRecorder constructs a recorder holding at most capacity events. A
// non-positive capacity falls back to the default.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = defaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if overflow := len(r.events) - r.capacity; overflow > 0 {
		r.events = append([]Event(nil), r.events[overflow:]...)
	}
}

// Events returns a snapshot of the retained events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
