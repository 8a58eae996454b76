package storage

import (
	"sync"

	"github.com/ruteri/device-share-storage/interfaces"
)

// Environment is a concurrency-safe registry of host capabilities.
// Capabilities can be provided or withdrawn at any time; adapters resolve
// them on every call.
type Environment struct {
	mu   sync.RWMutex
	caps map[string]any
}

var _ interfaces.HostEnvironment = (*Environment)(nil)

// NewEnvironment creates an environment exposing no capabilities.
func NewEnvironment() *Environment {
	return &Environment{caps: make(map[string]any)}
}

// Provide exposes v under name and returns the environment for chaining.
func (e *Environment) Provide(name string, v any) *Environment {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caps[name] = v
	return e
}

// Withdraw removes the capability registered under name.
func (e *Environment) Withdraw(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.caps, name)
}

// Capability returns the capability registered under name.
func (e *Environment) Capability(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.caps[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
