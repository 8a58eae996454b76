package permissions

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/device-share-storage/interfaces"
)

// ManualQuerier is a host permission system whose answer is set by the
// operator, through the CLI or the HTTP permission endpoint. Every status it
// hands out is live: Set notifies all subscribers.
type ManualQuerier struct {
	mu        sync.Mutex
	name      string
	state     interfaces.PermissionState
	listeners []func(interfaces.PermissionState)
}

var _ interfaces.PermissionQuerier = (*ManualQuerier)(nil)

// NewManualQuerier answers for the persistent storage permission, starting at state.
func NewManualQuerier(state interfaces.PermissionState) *ManualQuerier {
	return &ManualQuerier{name: interfaces.PersistentStoragePermission, state: state}
}

// ParsePermissionState validates a textual permission state.
func ParsePermissionState(s string) (interfaces.PermissionState, error) {
	switch state := interfaces.PermissionState(s); state {
	case interfaces.PermissionGranted, interfaces.PermissionDenied, interfaces.PermissionPrompt:
		return state, nil
	default:
		return "", fmt.Errorf("invalid permission state %q", s)
	}
}

// Query returns a live status for name.
func (q *ManualQuerier) Query(_ context.Context, name string) (interfaces.PermissionStatus, error) {
	if name != q.name {
		return nil, fmt.Errorf("%w: permission %s", interfaces.ErrCapabilityUnsupported, name)
	}
	return &manualStatus{q: q}, nil
}

// Set changes the answer and notifies subscribers when it differs.
func (q *ManualQuerier) Set(state interfaces.PermissionState) {
	q.mu.Lock()
	if q.state == state {
		q.mu.Unlock()
		return
	}
	q.state = state
	listeners := append([]func(interfaces.PermissionState){}, q.listeners...)
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// State returns the current answer.
func (q *ManualQuerier) State() interfaces.PermissionState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

type manualStatus struct {
	q *ManualQuerier
}

func (s *manualStatus) State() interfaces.PermissionState {
	return s.q.State()
}

func (s *manualStatus) OnChange(fn func(interfaces.PermissionState)) {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	s.q.listeners = append(s.q.listeners, fn)
}

// StaticQuerier answers every persistent storage query with a fixed state
// that never changes.
type StaticQuerier interfaces.PermissionState

var _ interfaces.PermissionQuerier = StaticQuerier("")

// Query returns the fixed state for the persistent storage permission.
func (q StaticQuerier) Query(_ context.Context, name string) (interfaces.PermissionStatus, error) {
	if name != interfaces.PersistentStoragePermission {
		return nil, fmt.Errorf("%w: permission %s", interfaces.ErrCapabilityUnsupported, name)
	}
	return staticStatus(q), nil
}

type staticStatus interfaces.PermissionState

func (s staticStatus) State() interfaces.PermissionState {
	return interfaces.PermissionState(s)
}

func (staticStatus) OnChange(func(interfaces.PermissionState)) {}
