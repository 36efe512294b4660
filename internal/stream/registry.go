package stream

import (
	"context"
	"fmt"
	"sync"
)

// DriverFactory builds a driver for a session bound to one emitter.
type DriverFactory func(sessionID string, emitter Emitter) *Driver

// Registry tracks the active driver per session so transports share the
// one-worker-per-session rule and end-session calls can shut the worker
// down. The map is the only cross-session shared state.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*Driver
	factory DriverFactory
}

func NewRegistry(factory DriverFactory) *Registry {
	return &Registry{
		drivers: make(map[string]*Driver),
		factory: factory,
	}
}

// Start validates the session and launches its driver. Fails if the
// session is unknown, its ID malformed, or a driver is already active
// for it.
func (r *Registry) Start(ctx context.Context, sessionID string, emitter Emitter) (*Driver, error) {
	r.mu.Lock()
	if _, exists := r.drivers[sessionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s already streaming", sessionID)
	}
	r.mu.Unlock()

	driver := r.factory(sessionID, emitter)
	if err := driver.Validate(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.drivers[sessionID]; exists {
		r.mu.Unlock()
		driver.reject(fmt.Errorf("session %s already streaming", sessionID))
		return nil, fmt.Errorf("session %s already streaming", sessionID)
	}
	r.drivers[sessionID] = driver
	r.mu.Unlock()

	go func() {
		driver.Run(ctx)
		r.mu.Lock()
		if r.drivers[sessionID] == driver {
			delete(r.drivers, sessionID)
		}
		r.mu.Unlock()
	}()

	return driver, nil
}

// Get returns the active driver for a session, if any.
func (r *Registry) Get(sessionID string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[sessionID]
	return d, ok
}

// Close stops a session's driver and waits for it to drain. No-op when
// the session has no active driver.
func (r *Registry) Close(sessionID string) {
	if d, ok := r.Get(sessionID); ok {
		d.Close()
	}
}

// CloseAll stops every active driver. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	drivers := make([]*Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		drivers = append(drivers, d)
	}
	r.mu.Unlock()

	for _, d := range drivers {
		d.Close()
	}
}
