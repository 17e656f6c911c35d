package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Address identifies a node on the multicast group. It doubles as the
// destination field of every packet.
type Address uint32

// BroadcastAddress addresses every node on the group.
const BroadcastAddress Address = 0

var (
	// ErrNotIPv4 indicates an address that cannot be mapped onto a node Address.
	ErrNotIPv4 = errors.New("not an IPv4 address")

	// ErrNoInterfaceAddress indicates no usable IPv4 address was found locally.
	ErrNoInterfaceAddress = errors.New("no usable IPv4 interface address")
)

// AddressFromIP derives a node address from an IPv4 address. The +1 offset
// keeps every host address distinct from BroadcastAddress.
func AddressFromIP(ip net.IP) (Address, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return BroadcastAddress, fmt.Errorf("%w: %v", ErrNotIPv4, ip)
	}
	return Address(binary.BigEndian.Uint32(ip4) + 1), nil
}

// AddressFromAddr derives a node address from a UDP or IP network address.
func AddressFromAddr(addr net.Addr) (Address, error) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return AddressFromIP(a.IP)
	case *net.IPAddr:
		return AddressFromIP(a.IP)
	default:
		return BroadcastAddress, fmt.Errorf("%w: unsupported address type %T", ErrNotIPv4, addr)
	}
}

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == BroadcastAddress
}

// IP returns the IPv4 address a was derived from.
func (a Address) IP() net.IP {
	if a.IsBroadcast() {
		return net.IPv4zero
	}
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, uint32(a)-1)
	return ip
}

// String returns "broadcast" or the dotted IPv4 form.
func (a Address) String() string {
	if a.IsBroadcast() {
		return "broadcast"
	}
	return a.IP().String()
}

// LocalAddress returns the node address of the first non-loopback IPv4
// address on the named interface, or on any interface when name is empty.
func LocalAddress(name string) (Address, error) {
	var ifaces []net.Interface
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return BroadcastAddress, fmt.Errorf("interface %q: %w", name, err)
		}
		ifaces = []net.Interface{*ifi}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return BroadcastAddress, err
		}
		ifaces = all
	}

	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
				continue
			}
			return AddressFromIP(ipNet.IP)
		}
	}

	return BroadcastAddress, ErrNoInterfaceAddress
}
