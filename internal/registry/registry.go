// Package registry holds the in-memory device-to-endpoint mapping. One
// Registry per platform, grouped in a Set, constructed at startup and
// injected wherever registrations are read or written. The state is
// deliberately ephemeral: entries live until the client unregisters or a
// send reports the endpoint disabled.
package registry

import (
	"sync"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// Entry pairs a registered device with its provider endpoint.
type Entry struct {
	Device   push.DeviceIdentity
	Endpoint push.EndpointIdentity
}

// Registry is the thread-safe mapping for a single platform. The lock
// protects only the map; callers must never hold it across network calls.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[push.DeviceIdentity]push.EndpointIdentity
}

func New() *Registry {
	return &Registry{endpoints: make(map[push.DeviceIdentity]push.EndpointIdentity)}
}

// Register inserts or overwrites the mapping for device. Releasing a
// replaced endpoint with the provider is the caller's responsibility.
func (r *Registry) Register(device push.DeviceIdentity, endpoint push.EndpointIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[device] = endpoint
}

// Unregister removes the mapping. Removing an unknown device is a no-op.
func (r *Registry) Unregister(device push.DeviceIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, device)
}

// RemoveIf removes device only while it is still bound to endpoint, so a
// stale-endpoint prune cannot drop a registration that was refreshed
// concurrently. Reports whether the entry was removed.
func (r *Registry) RemoveIf(device push.DeviceIdentity, endpoint push.EndpointIdentity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.endpoints[device]; ok && current == endpoint {
		delete(r.endpoints, device)
		return true
	}
	return false
}

// EndpointFor looks up the endpoint bound to device.
func (r *Registry) EndpointFor(device push.DeviceIdentity) (push.EndpointIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.endpoints[device]
	return endpoint, ok
}

// Endpoints returns a snapshot of every registered endpoint. Iterating the
// snapshot is unaffected by concurrent registration.
func (r *Registry) Endpoints() []push.EndpointIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]push.EndpointIdentity, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		snapshot = append(snapshot, endpoint)
	}
	return snapshot
}

// Entries returns a snapshot of every (device, endpoint) pair. The
// dispatcher uses this to map a failed endpoint back to its device.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]Entry, 0, len(r.endpoints))
	for device, endpoint := range r.endpoints {
		snapshot = append(snapshot, Entry{Device: device, Endpoint: endpoint})
	}
	return snapshot
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Set groups one Registry per platform so APNS and GCM traffic never
// contend on the same lock.
type Set struct {
	registries map[push.Platform]*Registry
}

// NewSet builds an empty registry for each given platform.
func NewSet(platforms []push.Platform) *Set {
	registries := make(map[push.Platform]*Registry, len(platforms))
	for _, p := range platforms {
		registries[p] = New()
	}
	return &Set{registries: registries}
}

// For returns the registry for platform, or false when the platform is not
// part of this deployment's configured set.
func (s *Set) For(platform push.Platform) (*Registry, bool) {
	r, ok := s.registries[platform]
	return r, ok
}

// Platforms lists the platforms this set was built for.
func (s *Set) Platforms() []push.Platform {
	platforms := make([]push.Platform, 0, len(s.registries))
	for _, p := range push.Platforms {
		if _, ok := s.registries[p]; ok {
			platforms = append(platforms, p)
		}
	}
	return platforms
}
