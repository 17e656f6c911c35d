package meshchat

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/peer"
	"github.com/opd-ai/meshchat/reliable"
	"github.com/opd-ai/meshchat/routing"
	"github.com/opd-ai/meshchat/transport"
)

// Protocol defaults.
const (
	DefaultGroup              = "228.0.0.4"
	DefaultPort               = 1231
	DefaultMainRoom           = "Chatroom"
	DefaultRetransmitInterval = 100 * time.Millisecond
	DefaultAliveInterval      = 3 * time.Second
	DefaultInactivityLimit    = 9 * time.Second
	DefaultGroupSecret        = "meshchat-group-key"
	DefaultName               = "anonymous"
)

// Options contains configuration options for creating a Node.
type Options struct {
	// Multicast group and port shared by every node.
	Group string
	Port  int

	// Interface selects the network interface; empty uses the system default.
	Interface string

	// TTL bounds how many IP routers a datagram may cross. 0 keeps the
	// system default, which confines traffic to the local link.
	TTL int

	// Name is the display name announced in presence beacons.
	Name string

	// Color and TextColor are presentation hints attached to chat messages.
	Color     uint32
	TextColor uint32
	Font      string
	FontSize  uint16

	// Address overrides the node address derived from the transport.
	Address transport.Address

	WindowSize         int
	MaxHops            int16
	RetransmitInterval time.Duration
	AliveInterval      time.Duration
	InactivityLimit    time.Duration

	// GroupSecret derives the fallback key for broadcast traffic and peers
	// without an agreed key. Nodes with different secrets cannot talk.
	GroupSecret string

	// MainRoom names the destination every known peer belongs to.
	MainRoom string

	// EventBuffer sizes the channel returned by Node.Events. 0 disables it.
	EventBuffer int

	LogLevel logrus.Level

	// TimeProvider drives presence timestamps; nil uses wall-clock time.
	TimeProvider peer.TimeProvider

	// Transport replaces the multicast socket, e.g. with a simulated medium.
	Transport transport.Transport
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Group:              DefaultGroup,
		Port:               DefaultPort,
		Name:               DefaultName,
		FontSize:           12,
		WindowSize:         reliable.DefaultWindowSize,
		MaxHops:            routing.DefaultMaxHops,
		RetransmitInterval: DefaultRetransmitInterval,
		AliveInterval:      DefaultAliveInterval,
		InactivityLimit:    DefaultInactivityLimit,
		GroupSecret:        DefaultGroupSecret,
		MainRoom:           DefaultMainRoom,
		LogLevel:           logrus.InfoLevel,
		TimeProvider:       peer.DefaultTimeProvider{},
	}
}

// Validate reports the first invalid setting.
func (o *Options) Validate() error {
	if o.Transport == nil {
		ip := net.ParseIP(o.Group)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: group %q is not an IPv4 multicast address", ErrInvalidOptions, o.Group)
		}
		if o.Port <= 0 || o.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidOptions, o.Port)
		}
	}
	if err := messaging.ValidateName(o.Name); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidOptions, err)
	}
	if o.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive", ErrInvalidOptions)
	}
	if o.MaxHops <= 0 {
		return fmt.Errorf("%w: max hops must be positive", ErrInvalidOptions)
	}
	if o.RetransmitInterval <= 0 || o.AliveInterval <= 0 || o.InactivityLimit <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidOptions)
	}
	if o.InactivityLimit <= o.AliveInterval {
		return fmt.Errorf("%w: inactivity limit %v must exceed alive interval %v", ErrInvalidOptions, o.InactivityLimit, o.AliveInterval)
	}
	if o.MainRoom == "" {
		return fmt.Errorf("%w: main room name is empty", ErrInvalidOptions)
	}
	if o.EventBuffer < 0 {
		return fmt.Errorf("%w: negative event buffer", ErrInvalidOptions)
	}
	return nil
}
