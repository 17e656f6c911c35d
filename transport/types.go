package transport

// Transport is the shared medium every node sends to and receives from.
// There is no unicast path: addressed packets are sent to the whole group
// and filtered by destination on arrival.
type Transport interface {
	// Send encodes the packet and sends it to the group.
	Send(packet *Packet) error

	// Receive blocks until a datagram arrives and copies it into buf. from is
	// the network-layer sender, which may be a relay rather than the packet source.
	Receive(buf []byte) (n int, from Address, err error)

	// Close shuts down the transport. A blocked Receive returns an error
	// wrapping net.ErrClosed.
	Close() error

	// LocalAddress returns the address derived from the local interface.
	LocalAddress() Address
}
