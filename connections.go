package meshchat

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/peer"
	"github.com/opd-ai/meshchat/reliable"
	"github.com/opd-ai/meshchat/transport"
)

// OpenConnection allocates the send and receive windows for addr. An
// existing connection is returned unchanged.
func (n *Node) OpenConnection(addr transport.Address) *reliable.Connection {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	if conn, ok := n.connections[addr]; ok {
		return conn
	}
	conn := reliable.NewConnection(addr, n.options.WindowSize)
	n.connections[addr] = conn

	logrus.WithFields(logrus.Fields{
		"function": "OpenConnection",
		"peer":     addr.String(),
		"window":   n.options.WindowSize,
	}).Debug("Connection opened")
	return conn
}

// CloseConnection discards both windows for addr, including any packets
// still awaiting acknowledgement.
func (n *Node) CloseConnection(addr transport.Address) bool {
	n.connMu.Lock()
	conn, ok := n.connections[addr]
	delete(n.connections, addr)
	n.connMu.Unlock()

	if ok {
		logrus.WithFields(logrus.Fields{
			"function":  "CloseConnection",
			"peer":      addr.String(),
			"discarded": conn.Send.Len(),
		}).Debug("Connection closed")
	}
	return ok
}

// Connection returns the open connection to addr.
func (n *Node) Connection(addr transport.Address) (*reliable.Connection, bool) {
	n.connMu.RLock()
	defer n.connMu.RUnlock()
	conn, ok := n.connections[addr]
	return conn, ok
}

func (n *Node) connectionSnapshot() []*reliable.Connection {
	n.connMu.RLock()
	defer n.connMu.RUnlock()
	out := make([]*reliable.Connection, 0, len(n.connections))
	for _, c := range n.connections {
		out = append(out, c)
	}
	return out
}

// AddPeer adds addr to the registry and the main room, opens a connection
// and starts a key exchange. Adding a known peer only refreshes it.
func (n *Node) AddPeer(addr transport.Address, name string) error {
	if addr.IsBroadcast() || addr == n.self {
		return newNodeError("add peer", addr, ErrInvalidAddress)
	}
	n.ensurePeer(addr, name, true)
	return nil
}

// RemovePeer forgets addr: its connection, key, routes and destinations.
func (n *Node) RemovePeer(addr transport.Address) error {
	if !n.removePeer(addr, "removed") {
		return newNodeError("remove peer", addr, ErrUnknownPeer)
	}
	return nil
}

// Peer returns the registry record for addr.
func (n *Node) Peer(addr transport.Address) (peer.Peer, bool) {
	return n.peers.Get(addr)
}

// PeerByName returns the lowest-addressed peer called name. A peer that
// never announced a name is found by its dotted address.
func (n *Node) PeerByName(name string) (peer.Peer, bool) {
	if p, ok := n.peers.FindByName(name); ok {
		return p, true
	}
	for _, p := range n.peers.List() {
		if p.Name == "" && p.Address.String() == name {
			return p, true
		}
	}
	return peer.Peer{}, false
}

// Peers returns every known peer ordered by address.
func (n *Node) Peers() []peer.Peer {
	return n.peers.List()
}

// ensurePeer records a sighting of addr. A new peer gets a connection, a
// main-room entry and a PeerJoined event; initiate also starts a key
// exchange with it.
func (n *Node) ensurePeer(addr transport.Address, name string, initiate bool) (peer.Peer, bool) {
	var (
		pub      []byte
		announce bool
	)

	n.memberMu.Lock()
	p, isNew := n.peers.Add(addr, name)
	if isNew {
		n.OpenConnection(addr)
		n.destinations.add(n.options.MainRoom, addr)
		if initiate {
			pub, announce = n.beginKeyExchange(addr)
		}
	}
	n.memberMu.Unlock()

	if !isNew {
		return p, false
	}
	n.emit(Event{Type: EventPeerJoined, Peer: p, Room: n.options.MainRoom})
	if announce {
		n.sendPublicKey(addr, pub)
	}
	return p, true
}

// removePeer tears down everything known about addr. Only the call that
// actually removed the peer emits PeerLeft.
func (n *Node) removePeer(addr transport.Address, reason string) bool {
	n.memberMu.Lock()
	p, ok := n.peers.Remove(addr)
	if ok {
		n.CloseConnection(addr)
		n.keys.remove(addr)
		n.routes.Remove(addr)
		n.destinations.removeAddress(addr)
	}
	n.memberMu.Unlock()

	if !ok {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function": "removePeer",
		"peer":     addr.String(),
		"name":     p.Name,
		"reason":   reason,
	}).Info("Peer left")

	n.emit(Event{Type: EventPeerLeft, Peer: p, Room: n.options.MainRoom, Text: reason})
	return true
}
