package meshchat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opd-ai/meshchat/peer"
	"github.com/opd-ai/meshchat/transport"
)

// destinationTable maps destination labels to the addresses a send fans
// out to. The main room always exists.
type destinationTable struct {
	mu       sync.RWMutex
	mainRoom string
	rooms    map[string]map[transport.Address]struct{}
}

func newDestinationTable(mainRoom string) *destinationTable {
	return &destinationTable{
		mainRoom: mainRoom,
		rooms: map[string]map[transport.Address]struct{}{
			mainRoom: {},
		},
	}
}

// set replaces the address set of name. The main room is owned by
// presence and is never replaced.
func (d *destinationTable) set(name string, addrs []transport.Address) bool {
	if name == d.mainRoom {
		return false
	}
	set := make(map[transport.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}

	d.mu.Lock()
	d.rooms[name] = set
	d.mu.Unlock()
	return true
}

// add puts addr into name, creating the destination if needed.
func (d *destinationTable) add(name string, addr transport.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[name] == nil {
		d.rooms[name] = make(map[transport.Address]struct{})
	}
	d.rooms[name][addr] = struct{}{}
}

// get returns the addresses of name in ascending order.
func (d *destinationTable) get(name string) ([]transport.Address, bool) {
	d.mu.RLock()
	set, ok := d.rooms[name]
	out := make([]transport.Address, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, ok
}

// removeAddress drops addr from every destination. Destinations other than
// the main room that become empty are deleted.
func (d *destinationTable) removeAddress(addr transport.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, set := range d.rooms {
		if _, ok := set[addr]; !ok {
			continue
		}
		delete(set, addr)
		if len(set) == 0 && name != d.mainRoom {
			delete(d.rooms, name)
		}
	}
}

// rename moves a destination to a new label unless the label is taken.
func (d *destinationTable) rename(oldName, newName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if oldName == d.mainRoom || newName == d.mainRoom {
		return false
	}
	set, ok := d.rooms[oldName]
	if !ok {
		return false
	}
	if _, taken := d.rooms[newName]; taken {
		return false
	}
	delete(d.rooms, oldName)
	d.rooms[newName] = set
	return true
}

func (d *destinationTable) snapshot() map[string][]transport.Address {
	d.mu.RLock()
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	d.mu.RUnlock()

	out := make(map[string][]transport.Address, len(names))
	for _, name := range names {
		if addrs, ok := d.get(name); ok {
			out[name] = addrs
		}
	}
	return out
}

// roomLabel names the private room of the peer at addr. A peer without a
// name, or one named like the main room, is labelled by address.
func (n *Node) roomLabel(addr transport.Address, name string) string {
	if name == "" || name == n.options.MainRoom {
		return addr.String()
	}
	return name
}

// openPrivateRoom maps the private room of src to src alone. Unless
// replace is set an existing room is left as it is. It returns the peer,
// the room label and whether the room was written; an empty label means
// src is not a known peer.
func (n *Node) openPrivateRoom(src transport.Address, replace bool) (peer.Peer, string, bool) {
	n.memberMu.Lock()
	defer n.memberMu.Unlock()

	p, ok := n.peers.Get(src)
	if !ok {
		return p, "", false
	}
	room := n.roomLabel(src, p.Name)
	if !replace {
		if _, exists := n.destinations.get(room); exists {
			return p, room, false
		}
	}
	return p, room, n.destinations.set(room, []transport.Address{src})
}

// AddDestination maps name to exactly the given addresses, replacing any
// previous mapping. The main room cannot be replaced.
func (n *Node) AddDestination(name string, addrs ...transport.Address) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownDestination)
	}
	if name == n.options.MainRoom {
		return fmt.Errorf("%w: %q is managed by presence", ErrReservedDestination, name)
	}
	for _, a := range addrs {
		if a.IsBroadcast() || a == n.self {
			return newNodeError("add destination", a, ErrInvalidAddress)
		}
	}
	n.destinations.set(name, addrs)
	return nil
}

// Destination returns the addresses mapped to name.
func (n *Node) Destination(name string) ([]transport.Address, bool) {
	return n.destinations.get(name)
}

// Destinations returns every named destination and its addresses.
func (n *Node) Destinations() map[string][]transport.Address {
	return n.destinations.snapshot()
}
