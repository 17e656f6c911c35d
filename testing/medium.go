package testing

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/transport"
)

// DefaultInboxSize is the number of datagrams an endpoint buffers before
// further arrivals are dropped, as a full socket buffer would.
const DefaultInboxSize = 1024

// DeliveryRecord is one datagram handed from a sender to one listener.
type DeliveryRecord struct {
	From    transport.Address
	To      transport.Address
	Packet  *transport.Packet
	Dropped bool
}

// DropFunc decides whether a datagram is lost in transit.
type DropFunc func(from, to transport.Address, pkt *transport.Packet) bool

// Medium is an in-memory multicast group. Every datagram one endpoint sends
// is delivered to every endpoint within radio range of it. Until Link is
// called, every endpoint hears every other one.
type Medium struct {
	mu          sync.RWMutex
	endpoints   map[transport.Address]*Endpoint
	links       map[transport.Address]map[transport.Address]bool
	restricted  bool
	drop        DropFunc
	deliveryLog []DeliveryRecord
}

// NewMedium creates an empty, fully connected medium.
func NewMedium() *Medium {
	logrus.WithField("function", "NewMedium").Debug("Creating simulated multicast medium")
	return &Medium{
		endpoints: make(map[transport.Address]*Endpoint),
		links:     make(map[transport.Address]map[transport.Address]bool),
	}
}

// Join attaches a new endpoint at addr.
func (m *Medium) Join(addr transport.Address) *Endpoint {
	ep := &Endpoint{
		medium: m,
		addr:   addr,
		inbox:  make(chan datagram, DefaultInboxSize),
		closed: make(chan struct{}),
	}

	m.mu.Lock()
	m.endpoints[addr] = ep
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Join",
		"address":  addr.String(),
	}).Debug("Endpoint joined simulated medium")
	return ep
}

// Link makes a and b hear each other. Once any link exists, endpoints
// without a link cannot hear each other.
func (m *Medium) Link(a, b transport.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restricted = true
	m.link(a, b, true)
	m.link(b, a, true)
}

// Unlink cuts the radio path between a and b.
func (m *Medium) Unlink(a, b transport.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restricted = true
	m.link(a, b, false)
	m.link(b, a, false)
}

func (m *Medium) link(from, to transport.Address, up bool) {
	if m.links[from] == nil {
		m.links[from] = make(map[transport.Address]bool)
	}
	m.links[from][to] = up
}

// SetDropFunc installs a loss model. nil disables loss.
func (m *Medium) SetDropFunc(fn DropFunc) {
	m.mu.Lock()
	m.drop = fn
	m.mu.Unlock()
}

// DeliveryLog returns a copy of every delivery attempted so far.
func (m *Medium) DeliveryLog() []DeliveryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DeliveryRecord(nil), m.deliveryLog...)
}

// Deliveries returns the successful deliveries matching fn.
func (m *Medium) Deliveries(fn func(DeliveryRecord) bool) []DeliveryRecord {
	var out []DeliveryRecord
	for _, rec := range m.DeliveryLog() {
		if !rec.Dropped && fn(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Medium) hears(from, to transport.Address) bool {
	if from == to {
		return false
	}
	if !m.restricted {
		return true
	}
	return m.links[from][to]
}

func (m *Medium) broadcast(from transport.Address, data []byte) {
	pkt, err := transport.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "broadcast",
			"from":     from.String(),
			"error":    err.Error(),
		}).Warn("Simulated medium carried an undecodable datagram")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for to, ep := range m.endpoints {
		if !m.hears(from, to) {
			continue
		}

		rec := DeliveryRecord{From: from, To: to, Packet: pkt}
		if m.drop != nil && pkt != nil && m.drop(from, to, pkt) {
			rec.Dropped = true
		} else if !ep.deliver(from, data) {
			rec.Dropped = true
			logrus.WithFields(logrus.Fields{
				"function": "broadcast",
				"to":       to.String(),
			}).Warn("Simulated inbox full, datagram dropped")
		}
		m.deliveryLog = append(m.deliveryLog, rec)
	}
}

func (m *Medium) leave(addr transport.Address, ep *Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endpoints[addr] == ep {
		delete(m.endpoints, addr)
	}
}

type datagram struct {
	from transport.Address
	data []byte
}

// Endpoint is one node's attachment to a Medium. It implements
// transport.Transport.
type Endpoint struct {
	medium    *Medium
	addr      transport.Address
	inbox     chan datagram
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Endpoint)(nil)

// Send encodes the packet and delivers it to every endpoint in range.
func (e *Endpoint) Send(packet *transport.Packet) error {
	select {
	case <-e.closed:
		return fmt.Errorf("send from %s: %w", e.addr, net.ErrClosed)
	default:
	}

	data, err := packet.Encode()
	if err != nil {
		return err
	}
	e.medium.broadcast(e.addr, data)
	return nil
}

// Receive blocks until a datagram arrives or the endpoint is closed.
func (e *Endpoint) Receive(buf []byte) (int, transport.Address, error) {
	select {
	case <-e.closed:
		return 0, transport.BroadcastAddress, fmt.Errorf("receive on %s: %w", e.addr, net.ErrClosed)
	case dg := <-e.inbox:
		n := copy(buf, dg.data)
		return n, dg.from, nil
	}
}

// Close detaches the endpoint and unblocks Receive.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.medium.leave(e.addr, e)
	})
	return nil
}

// LocalAddress returns the endpoint's address.
func (e *Endpoint) LocalAddress() transport.Address {
	return e.addr
}

func (e *Endpoint) deliver(from transport.Address, data []byte) bool {
	select {
	case e.inbox <- datagram{from: from, data: data}:
		return true
	default:
		return false
	}
}
