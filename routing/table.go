package routing

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/transport"
)

// DefaultMaxHops is the hop budget every originated packet starts with.
const DefaultMaxHops = 4

// Route is a learned path to a destination.
type Route struct {
	Destination transport.Address
	NextHop     transport.Address
	Cost        int
}

// ForwardTable learns routes passively from overheard traffic. A packet
// from S heard through relay R means S is reachable via R at a cost of the
// hops it has already travelled plus one.
type ForwardTable struct {
	mu      sync.RWMutex
	self    transport.Address
	maxHops int16
	routes  map[transport.Address]Route
}

// NewForwardTable creates an empty table for the node at self.
func NewForwardTable(self transport.Address, maxHops int16) *ForwardTable {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &ForwardTable{
		self:    self,
		maxHops: maxHops,
		routes:  make(map[transport.Address]Route),
	}
}

// Cost returns the route cost implied by a packet's remaining hops.
func (t *ForwardTable) Cost(hops int16) int {
	return int(t.maxHops) - int(hops) + 1
}

// Learn records a route to pkt.Source via the network-layer sender. An
// existing route is replaced only by a strictly cheaper one. It reports
// whether the table changed.
func (t *ForwardTable) Learn(pkt *transport.Packet, via transport.Address) bool {
	if pkt.Source.IsBroadcast() || via.IsBroadcast() {
		return false
	}

	cost := t.Cost(pkt.Hops)

	t.mu.Lock()
	defer t.mu.Unlock()

	if pkt.Source == t.self {
		return false
	}
	if existing, ok := t.routes[pkt.Source]; ok && existing.Cost <= cost {
		return false
	}
	t.routes[pkt.Source] = Route{Destination: pkt.Source, NextHop: via, Cost: cost}

	logrus.WithFields(logrus.Fields{
		"function":    "Learn",
		"destination": pkt.Source.String(),
		"next_hop":    via.String(),
		"cost":        cost,
	}).Debug("Route learned")
	return true
}

// NextHop returns the learned next hop for dst, or dst itself when no route
// is known.
func (t *ForwardTable) NextHop(dst transport.Address) transport.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.routes[dst]; ok {
		return r.NextHop
	}
	return dst
}

// Lookup returns the route to dst, if any.
func (t *ForwardTable) Lookup(dst transport.Address) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[dst]
	return r, ok
}

// Remove drops the route to addr and every route that goes through it.
// It returns the number of routes removed.
func (t *ForwardTable) Remove(addr transport.Address) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for dst, r := range t.routes {
		if dst == addr || r.NextHop == addr {
			delete(t.routes, dst)
			removed++
		}
	}
	return removed
}

// Routes returns a snapshot of the table ordered by destination.
func (t *ForwardTable) Routes() []Route {
	t.mu.RLock()
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out
}

// Len returns the number of routes.
func (t *ForwardTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
