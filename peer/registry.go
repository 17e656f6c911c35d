package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/transport"
)

// Registry is the concurrency-safe set of known peers keyed by address.
// Lookups return copies; mutate through the registry methods.
type Registry struct {
	mu           sync.RWMutex
	peers        map[transport.Address]*Peer
	timeProvider TimeProvider
}

// NewRegistry creates an empty registry. A nil provider uses wall-clock time.
func NewRegistry(tp TimeProvider) *Registry {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	return &Registry{
		peers:        make(map[transport.Address]*Peer),
		timeProvider: tp,
	}
}

// Add inserts a peer, or refreshes its LastSeen if it is already known. It
// returns the stored record and whether the peer is new. A non-empty name
// replaces an address-only placeholder.
func (r *Registry) Add(addr transport.Address, name string) (Peer, bool) {
	now := r.timeProvider.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[addr]; ok {
		p.LastSeen = now
		if p.Name == "" && name != "" {
			p.Name = name
		}
		return *p, false
	}

	p := &Peer{Address: addr, Name: name, LastSeen: now}
	r.peers[addr] = p

	logrus.WithFields(logrus.Fields{
		"function": "Add",
		"address":  addr.String(),
		"name":     name,
	}).Info("Peer added")

	return *p, true
}

// Get returns the peer at addr.
func (r *Registry) Get(addr transport.Address) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.peers[addr]; ok {
		return *p, true
	}
	return Peer{}, false
}

// FindByName returns the first peer, in address order, with the given name.
func (r *Registry) FindByName(name string) (Peer, bool) {
	for _, p := range r.List() {
		if p.Name == name {
			return p, true
		}
	}
	return Peer{}, false
}

// Touch refreshes a known peer's LastSeen. It reports whether the peer exists.
func (r *Registry) Touch(addr transport.Address) bool {
	now := r.timeProvider.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[addr]
	if ok {
		p.LastSeen = now
	}
	return ok
}

// Rename changes a peer's display name and returns the previous one.
func (r *Registry) Rename(addr transport.Address, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[addr]
	if !ok {
		return "", false
	}
	old := p.Name
	p.Name = name

	logrus.WithFields(logrus.Fields{
		"function": "Rename",
		"address":  addr.String(),
		"old_name": old,
		"new_name": name,
	}).Info("Peer renamed")

	return old, true
}

// SetAttributes stores the presentation attributes a peer advertised.
func (r *Registry) SetAttributes(addr transport.Address, attrs Attributes) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[addr]
	if ok {
		p.Attributes = attrs
	}
	return ok
}

// Remove deletes the peer at addr. Only the call that actually removed the
// peer gets ok == true, so concurrent removals notify once.
func (r *Registry) Remove(addr transport.Address) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[addr]
	if !ok {
		return Peer{}, false
	}
	delete(r.peers, addr)

	logrus.WithFields(logrus.Fields{
		"function": "Remove",
		"address":  addr.String(),
		"name":     p.Name,
	}).Info("Peer removed")

	return *p, true
}

// List returns every peer ordered by address.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Inactive returns the peers not seen for longer than limit. self is never
// reported.
func (r *Registry) Inactive(limit time.Duration, self transport.Address) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []Peer
	for addr, p := range r.peers {
		if addr == self {
			continue
		}
		if r.timeProvider.Since(p.LastSeen) > limit {
			stale = append(stale, *p)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Address < stale[j].Address })
	return stale
}
