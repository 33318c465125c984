package presence

import (
	"sort"
	"sync"

	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/models"
)

// Channel is one live notification connection. Send must be safe for
// concurrent use; a failed send affects only that channel.
type Channel interface {
	Send(ev events.Event) error
}

type entry struct {
	role     models.Role
	channels map[Channel]struct{}
}

type flags struct {
	online   bool
	approved bool
}

// Registry maps authenticated identities to their live channels and tracks
// which drivers are available for offers. It is purely process-local: state
// is rebuilt as clients reconnect after a restart.
//
// Availability is business state, not connection liveness: a driver that
// drops its channel without an explicit offline call stays in the broadcast
// set until told otherwise.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*entry
	drivers map[string]flags
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*entry),
		drivers: make(map[string]flags),
	}
}

// Register adds a channel to the identity's set, creating the entry on first
// open. Registering a driver does not make it available for offers.
func (r *Registry) Register(identity string, role models.Role, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[identity]
	if !ok {
		e = &entry{role: role, channels: make(map[Channel]struct{})}
		r.conns[identity] = e
	}
	e.channels[ch] = struct{}{}
}

// Unregister removes the channel and prunes the entry once its set is empty.
func (r *Registry) Unregister(identity string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[identity]
	if !ok {
		return
	}
	delete(e.channels, ch)
	if len(e.channels) == 0 {
		delete(r.conns, identity)
	}
}

// Channels returns a snapshot of the identity's live channels. The returned
// slice is safe to iterate while other goroutines mutate the registry.
func (r *Registry) Channels(identity string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[identity]
	if !ok {
		return nil
	}
	out := make([]Channel, 0, len(e.channels))
	for ch := range e.channels {
		out = append(out, ch)
	}
	return out
}

// Connected reports whether the identity has at least one live channel.
func (r *Registry) Connected(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[identity]
	return ok
}

// SetOnline flips the driver's explicit availability flag.
func (r *Registry) SetOnline(driverID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.drivers[driverID]
	f.online = online
	r.setFlags(driverID, f)
}

// SetApproved flips the driver's approval flag.
func (r *Registry) SetApproved(driverID string, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.drivers[driverID]
	f.approved = approved
	r.setFlags(driverID, f)
}

func (r *Registry) setFlags(driverID string, f flags) {
	if !f.online && !f.approved {
		delete(r.drivers, driverID)
		return
	}
	r.drivers[driverID] = f
}

// Available returns the driver's online and approved flags.
func (r *Registry) Available(driverID string) (online, approved bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := r.drivers[driverID]
	return f.online, f.approved
}

// AvailableDrivers snapshots the ids currently eligible for offers, sorted
// for deterministic fan-out order.
func (r *Registry) AvailableDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for id, f := range r.drivers {
		if f.online && f.approved {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
