package peer

import (
	"fmt"
	"time"

	"github.com/opd-ai/meshchat/transport"
)

// Attributes carries presentation hints a peer advertises with its chat
// messages. The protocol engine stores them but never interprets them.
type Attributes struct {
	Color     uint32
	TextColor uint32
}

// Peer is one known node on the group.
type Peer struct {
	Address    transport.Address
	Name       string
	Attributes Attributes
	LastSeen   time.Time
}

// DisplayName returns the peer's name, or its address when it has not
// announced one yet.
func (p Peer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address.String()
}

// String implements fmt.Stringer.
func (p Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.DisplayName(), p.Address)
}
