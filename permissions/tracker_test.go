package permissions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPermissionQuerier implements interfaces.PermissionQuerier for testing
type MockPermissionQuerier struct {
	mock.Mock
}

func (m *MockPermissionQuerier) Query(ctx context.Context, name string) (interfaces.PermissionStatus, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PermissionStatus), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitInitialized(t *testing.T, tracker *Tracker) {
	t.Helper()
	select {
	case <-tracker.Initialized():
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not initialize")
	}
}

func TestTracker_InitialState(t *testing.T) {
	tests := []struct {
		name     string
		querier  interfaces.PermissionQuerier
		expected interfaces.CapabilityState
	}{
		{"granted", StaticQuerier(interfaces.PermissionGranted), interfaces.CapabilityGranted},
		{"denied", StaticQuerier(interfaces.PermissionDenied), interfaces.CapabilityDenied},
		{"prompt", StaticQuerier(interfaces.PermissionPrompt), interfaces.CapabilityUnknown},
		{"no querier", nil, interfaces.CapabilityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(context.Background(), tt.querier, testLogger())
			waitInitialized(t, tracker)

			assert.Equal(t, tt.expected, tracker.State())
			assert.Equal(t, tt.expected != interfaces.CapabilityDenied, tracker.Usable())
		})
	}
}

func TestTracker_QueryFailureStaysUnknown(t *testing.T) {
	querier := new(MockPermissionQuerier)
	querier.On("Query", mock.Anything, interfaces.PersistentStoragePermission).
		Return(nil, errors.New("permissions API unavailable"))

	tracker := NewTracker(context.Background(), querier, testLogger())
	waitInitialized(t, tracker)

	assert.Equal(t, interfaces.CapabilityUnknown, tracker.State())
	assert.True(t, tracker.Usable())
	querier.AssertExpectations(t)
}

func TestTracker_FollowsChanges(t *testing.T) {
	querier := NewManualQuerier(interfaces.PermissionPrompt)
	tracker := NewTracker(context.Background(), querier, testLogger())
	waitInitialized(t, tracker)
	require.Equal(t, interfaces.CapabilityUnknown, tracker.State())

	querier.Set(interfaces.PermissionGranted)
	assert.Equal(t, interfaces.CapabilityGranted, tracker.State())

	querier.Set(interfaces.PermissionDenied)
	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
	assert.False(t, tracker.Usable())

	// Prompt leaves the last answer in place.
	querier.Set(interfaces.PermissionPrompt)
	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())

	querier.Set(interfaces.PermissionGranted)
	assert.True(t, tracker.Usable())
}

func TestTracker_DenyLatchesUntilNotification(t *testing.T) {
	querier := NewManualQuerier(interfaces.PermissionGranted)
	tracker := NewTracker(context.Background(), querier, testLogger())
	waitInitialized(t, tracker)
	require.True(t, tracker.Usable())

	tracker.Deny("quota exhausted")
	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
	assert.False(t, tracker.Usable())

	// Repeated denials are harmless.
	tracker.Deny("quota exhausted")
	assert.False(t, tracker.Usable())

	// The host granting again lifts the latch.
	querier.Set(interfaces.PermissionDenied)
	querier.Set(interfaces.PermissionGranted)
	assert.True(t, tracker.Usable())
}

func TestTracker_UsableBeforeQuerySettles(t *testing.T) {
	release := make(chan time.Time)
	querier := new(MockPermissionQuerier)
	querier.On("Query", mock.Anything, interfaces.PersistentStoragePermission).
		WaitUntil(release).
		Return(staticStatus(interfaces.PermissionDenied), nil)

	tracker := NewTracker(context.Background(), querier, testLogger())
	assert.True(t, tracker.Usable())

	close(release)
	waitInitialized(t, tracker)
	assert.False(t, tracker.Usable())
}

func TestTracker_DenyBeforeInitialQuerySettles(t *testing.T) {
	ctx := context.Background()
	manual := NewManualQuerier(interfaces.PermissionGranted)
	status, err := manual.Query(ctx, interfaces.PersistentStoragePermission)
	require.NoError(t, err)

	release := make(chan time.Time)
	querier := new(MockPermissionQuerier)
	querier.On("Query", mock.Anything, interfaces.PersistentStoragePermission).
		WaitUntil(release).
		Return(status, nil)

	tracker := NewTracker(ctx, querier, testLogger())
	tracker.Deny("secondary store quota exhausted")

	close(release)
	waitInitialized(t, tracker)

	// A late granted answer does not undo the latch.
	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
	assert.False(t, tracker.Usable())

	// Only a host notification does.
	manual.Set(interfaces.PermissionPrompt)
	assert.False(t, tracker.Usable())
	manual.Set(interfaces.PermissionGranted)
	assert.Equal(t, interfaces.CapabilityGranted, tracker.State())
	assert.True(t, tracker.Usable())
}

// racingStatus reports whatever the host switched to once a subscriber exists,
// standing in for a change that lands while the query result is delivered.
type racingStatus struct {
	before, after interfaces.PermissionState
	subscribed    bool
}

func (s *racingStatus) State() interfaces.PermissionState {
	if s.subscribed {
		return s.after
	}
	return s.before
}

func (s *racingStatus) OnChange(func(interfaces.PermissionState)) {
	s.subscribed = true
}

func TestTracker_SubscribesBeforeReadingState(t *testing.T) {
	querier := new(MockPermissionQuerier)
	querier.On("Query", mock.Anything, interfaces.PersistentStoragePermission).
		Return(&racingStatus{before: interfaces.PermissionGranted, after: interfaces.PermissionDenied}, nil)

	tracker := NewTracker(context.Background(), querier, testLogger())
	waitInitialized(t, tracker)

	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
	querier.AssertExpectations(t)
}

func TestTracker_NotificationDuringQueryWins(t *testing.T) {
	ctx := context.Background()
	manual := NewManualQuerier(interfaces.PermissionGranted)

	querier := new(MockPermissionQuerier)
	querier.On("Query", mock.Anything, interfaces.PersistentStoragePermission).
		Return(&notifyingStatus{ManualQuerier: manual, next: interfaces.PermissionDenied}, nil)

	tracker := NewTracker(ctx, querier, testLogger())
	waitInitialized(t, tracker)

	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
}

// notifyingStatus delivers a change right after subscription and then reports
// the stale answer it captured when the query was made.
type notifyingStatus struct {
	*ManualQuerier
	next interfaces.PermissionState
}

func (s *notifyingStatus) State() interfaces.PermissionState {
	return interfaces.PermissionGranted
}

func (s *notifyingStatus) OnChange(fn func(interfaces.PermissionState)) {
	status, _ := s.ManualQuerier.Query(context.Background(), interfaces.PersistentStoragePermission)
	status.OnChange(fn)
	s.ManualQuerier.Set(s.next)
}
