package permissions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ruteri/device-share-storage/interfaces"
	"go.uber.org/atomic"
)

// Tracker holds the capability state for the secondary store. It starts
// unknown, which counts as usable, and follows the host permission system for
// the life of the process.
type Tracker struct {
	state       atomic.Int32
	initialized chan struct{}
	log         *slog.Logger

	// mu orders writes so the initial query answer cannot overwrite a latch
	// or a newer host notification.
	mu       sync.Mutex
	latched  bool
	notified bool
}

var _ interfaces.CapabilityGate = (*Tracker)(nil)

// NewTracker creates a tracker and queries querier in the background.
// Callers never wait for the query; Usable reflects whatever is known so far.
func NewTracker(ctx context.Context, querier interfaces.PermissionQuerier, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		initialized: make(chan struct{}),
		log:         log,
	}
	t.state.Store(int32(interfaces.CapabilityUnknown))

	go t.init(ctx, querier)
	return t
}

// init queries the permission once and subscribes to changes.
//
// A failed query leaves the state unknown, so the secondary store is still
// attempted and reports its own unavailability.
func (t *Tracker) init(ctx context.Context, querier interfaces.PermissionQuerier) {
	defer close(t.initialized)

	if querier == nil {
		t.log.Debug("No permission querier, capability state stays unknown")
		return
	}

	status, err := querier.Query(ctx, interfaces.PersistentStoragePermission)
	if err != nil {
		t.log.Debug("Permission query failed, capability state stays unknown", "err", err)
		return
	}

	// Subscribe before reading so a change between the two is not lost.
	status.OnChange(t.onChange)
	state := status.State()

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.latched:
		t.log.Debug("Secondary store latched before permission query settled, ignoring initial answer")
	case t.notified:
		t.log.Debug("Permission changed before query settled, ignoring initial answer")
	default:
		t.apply(state)
	}
}

// onChange handles a host notification, the only event that clears a latch.
func (t *Tracker) onChange(state interfaces.PermissionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latched = false
	t.notified = true
	t.apply(state)
}

// apply maps a host permission answer onto the capability state. A prompt
// answer leaves the state as it is. Callers hold mu.
func (t *Tracker) apply(state interfaces.PermissionState) {
	switch state {
	case interfaces.PermissionDenied:
		t.set(interfaces.CapabilityDenied, "host permission denied")
	case interfaces.PermissionGranted:
		t.set(interfaces.CapabilityGranted, "host permission granted")
	}
}

func (t *Tracker) set(state interfaces.CapabilityState, reason string) {
	old := interfaces.CapabilityState(t.state.Swap(int32(state)))
	if old != state {
		t.log.Info("Secondary store capability changed",
			slog.String("from", old.String()),
			slog.String("to", state.String()),
			slog.String("reason", reason))
	}
}

// State returns the latest known capability state.
func (t *Tracker) State() interfaces.CapabilityState {
	return interfaces.CapabilityState(t.state.Load())
}

// Usable reports whether the secondary store may be attempted.
func (t *Tracker) Usable() bool {
	return t.State() != interfaces.CapabilityDenied
}

// Deny latches the state to denied. Only a later host notification can
// grant access again.
func (t *Tracker) Deny(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latched = true
	t.set(interfaces.CapabilityDenied, reason)
}

// Initialized is closed once the initial permission query has settled.
func (t *Tracker) Initialized() <-chan struct{} {
	return t.initialized
}
