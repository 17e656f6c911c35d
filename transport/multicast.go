package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// MulticastConfig describes the shared multicast group.
type MulticastConfig struct {
	Group     string // IPv4 multicast group, e.g. "228.0.0.4"
	Port      int
	Interface string // empty selects the system default
	TTL       int    // IP TTL for outgoing datagrams; 0 keeps the system default
	Loopback  bool   // deliver our own datagrams back to this host
}

// MulticastTransport sends and receives packets on one IPv4 multicast group.
// It satisfies the Transport interface.
type MulticastTransport struct {
	conn      *net.UDPConn
	pconn     *ipv4.PacketConn
	group     *net.UDPAddr
	ifi       *net.Interface
	localAddr Address
	closeOnce sync.Once
	closeErr  error
}

// NewMulticastTransport joins the configured group and returns a transport
// bound to it.
func NewMulticastTransport(cfg MulticastConfig) (*MulticastTransport, error) {
	groupIP := net.ParseIP(cfg.Group)
	if groupIP == nil || groupIP.To4() == nil || !groupIP.IsMulticast() {
		return nil, fmt.Errorf("invalid IPv4 multicast group %q", cfg.Group)
	}
	group := &net.UDPAddr{IP: groupIP, Port: cfg.Port}

	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("multicast interface %q: %w", cfg.Interface, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("failed to join multicast group %s: %w", group, err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastLoopback(cfg.Loopback); err != nil {
		logrus.WithError(err).Debug("Failed to set multicast loopback")
	}
	if cfg.TTL > 0 {
		if err := pconn.SetMulticastTTL(cfg.TTL); err != nil {
			logrus.WithError(err).Debug("Failed to set multicast TTL")
		}
	}
	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			logrus.WithError(err).Debug("Failed to set multicast interface")
		}
	}

	localAddr, err := LocalAddress(cfg.Interface)
	if err != nil {
		logrus.WithError(err).Warn("Could not derive node address from interface")
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewMulticastTransport",
		"group":     group.String(),
		"interface": cfg.Interface,
		"local":     localAddr.String(),
	}).Info("Joined multicast group")

	return &MulticastTransport{
		conn:      conn,
		pconn:     pconn,
		group:     group,
		ifi:       ifi,
		localAddr: localAddr,
	}, nil
}

// Send encodes the packet and writes it to the group.
func (t *MulticastTransport) Send(packet *Packet) error {
	data, err := packet.Encode()
	if err != nil {
		return err
	}

	_, err = t.conn.WriteToUDP(data, t.group)
	return err
}

// Receive reads one datagram from the group.
func (t *MulticastTransport) Receive(buf []byte) (int, Address, error) {
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, BroadcastAddress, t.handleReadError(err)
	}

	from, err := AddressFromIP(addr.IP)
	if err != nil {
		return n, BroadcastAddress, err
	}
	return n, from, nil
}

// handleReadError classifies connection read errors.
func (t *MulticastTransport) handleReadError(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return err
	}
	if opErr, ok := err.(*net.OpError); ok && opErr.Err != nil && opErr.Err.Error() == "message too long" {
		logrus.WithField("group", t.group.String()).Debug("Discarding oversized datagram")
	}
	return err
}

// Close leaves the group and closes the socket.
func (t *MulticastTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.pconn.LeaveGroup(t.ifi, t.group)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// LocalAddress returns the address derived from the local interface.
func (t *MulticastTransport) LocalAddress() Address {
	return t.localAddr
}

// GroupAddr returns the multicast group address.
func (t *MulticastTransport) GroupAddr() net.Addr {
	return t.group
}
