// Package transport implements the meshchat wire format and the shared
// multicast medium.
//
// # Packet Format
//
// Every packet is one datagram with a fixed 26-byte big-endian header:
//
//	offset  size  field
//	0       4     source address
//	4       4     destination address (0 = broadcast)
//	8       4     sequence number (byte offset within the connection)
//	12      4     cumulative acknowledgement number
//	16      2     flags (bit0 ACK, bit1 CHATMESSAGE, bit2 ENCRYPTION, bit3 KEYEXCHANGED)
//	18      2     remaining hops (signed)
//	20      4     total length including the header
//	24      2     checksum
//	26      ...   payload
//
// The checksum is the one's complement of the 16-bit sum of all header and
// payload words except the checksum itself. Decode rejects packets whose
// checksum does not verify:
//
//	pkt := transport.NewPacket(self, transport.BroadcastAddress, 4, payload)
//	data, err := pkt.Encode()
//	...
//	decoded, err := transport.Decode(data)
//	if errors.Is(err, transport.ErrChecksumMismatch) {
//	    // drop silently
//	}
//
// # Addresses
//
// A node address is the big-endian value of the host's IPv4 address plus
// one, so that 0 stays reserved for broadcast.
//
// # Transports
//
// MulticastTransport joins one IPv4 group with net.ListenMulticastUDP and
// tunes loopback and TTL through golang.org/x/net/ipv4. Tests use the
// simulated medium in the testing package, which satisfies the same
// Transport interface.
package transport
