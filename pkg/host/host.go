// Package host defines the collaborator contract the embedding host
// implements for the orchestrator: a monotonic clock, the safe-window
// signal, status rendering, and diagnostic logging. It also provides an
// in-memory Simulator implementing that contract, used by tests and by
// the CLI's standalone run mode.
package host

import (
	"sync"
	"time"

	"github.com/cuemby/otaagent/pkg/types"
)

// Clock supplies a monotonic "now" to the orchestrator's tick loop.
type Clock interface {
	Now() time.Time
}

// SafeWindow reports whether the device is currently in a state where a
// module unload/reload is tolerable (e.g. not mid-actuation).
type SafeWindow interface {
	SafeWindow() bool
}

// StatusSink receives the orchestrator's user-visible status on every
// transition, for the host to render (e.g. as LED patterns).
type StatusSink interface {
	SetStatus(types.Status)
}

// Logger receives diagnostic events from the orchestrator.
type Logger interface {
	Log(event types.Event)
}

// Collaborator bundles the full host contract the orchestrator depends
// on.
type Collaborator interface {
	Clock
	SafeWindow
	StatusSink
	Logger
}

// Simulator is an in-memory Collaborator implementation: a real wall
// clock, a settable safe-window flag, and recorded status/event history.
// It is used by orchestrator tests and by `otaagent run`.
type Simulator struct {
	mu         sync.Mutex
	safeWindow bool
	statuses   []types.Status
	events     []types.Event
}

// NewSimulator constructs a Simulator with the safe window open.
func NewSimulator() *Simulator {
	return &Simulator{safeWindow: true}
}

func (s *Simulator) Now() time.Time {
	return time.Now()
}

// SetSafeWindow toggles the simulated safe-window signal, e.g. to drive
// a cancellation scenario in a test.
func (s *Simulator) SetSafeWindow(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safeWindow = open
}

func (s *Simulator) SafeWindow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safeWindow
}

func (s *Simulator) SetStatus(status types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *Simulator) Log(event types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Statuses returns every status reported so far, in order.
func (s *Simulator) Statuses() []types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// LastStatus returns the most recently reported status, or "" if none.
func (s *Simulator) LastStatus() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

// Events returns every event logged so far, in order.
func (s *Simulator) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}
