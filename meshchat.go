package meshchat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/peer"
	"github.com/opd-ai/meshchat/reliable"
	"github.com/opd-ai/meshchat/routing"
	"github.com/opd-ai/meshchat/transport"
)

// Node is one chat endpoint and relay on the multicast group.
type Node struct {
	options   *Options
	transport transport.Transport
	self      transport.Address
	groupKey  *[crypto.KeySize]byte

	nameMu sync.RWMutex
	name   string

	peers        *peer.Registry
	destinations *destinationTable
	routes       *routing.ForwardTable
	forwarded    *routing.ForwardFilter
	keys         *keyStore

	connMu      sync.RWMutex
	connections map[transport.Address]*reliable.Connection

	// memberMu makes a join or a leave apply to the registry, connection,
	// key, route and destination state as one step.
	memberMu sync.Mutex

	// beaconSeq numbers unreliable packets (presence, ACKs, leave) so
	// relays can tell successive ones apart.
	beaconSeq atomic.Uint32

	events  *dispatcher
	metrics metrics

	runMu    sync.Mutex
	running  bool
	killed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closing  atomic.Bool
	killOnce sync.Once
}

// New creates a node. Unless opts.Transport is set it joins the
// configured multicast group immediately; call Start to begin processing.
func New(opts *Options) (*Node, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = peer.DefaultTimeProvider{}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logrus.SetLevel(opts.LogLevel)

	tr := opts.Transport
	if tr == nil {
		mt, err := transport.NewMulticastTransport(transport.MulticastConfig{
			Group:     opts.Group,
			Port:      opts.Port,
			Interface: opts.Interface,
			TTL:       opts.TTL,
			Loopback:  true,
		})
		if err != nil {
			return nil, newNodeError("new", transport.BroadcastAddress, err)
		}
		tr = mt
	}

	self := opts.Address
	if self.IsBroadcast() {
		self = tr.LocalAddress()
	}
	if self.IsBroadcast() {
		_ = tr.Close()
		return nil, ErrNoAddress
	}

	n := &Node{
		options:      opts,
		transport:    tr,
		self:         self,
		groupKey:     crypto.GroupKey(opts.GroupSecret),
		name:         opts.Name,
		peers:        peer.NewRegistry(opts.TimeProvider),
		destinations: newDestinationTable(opts.MainRoom),
		routes:       routing.NewForwardTable(self, opts.MaxHops),
		forwarded:    routing.NewForwardFilter(opts.WindowSize),
		keys:         newKeyStore(),
		connections:  make(map[transport.Address]*reliable.Connection),
	}
	n.events = newDispatcher(opts.EventBuffer, func() { n.metrics.eventsDropped.Add(1) })

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"address":   self.String(),
		"name":      opts.Name,
		"main_room": opts.MainRoom,
	}).Info("Node created")

	return n, nil
}

// Start launches the receive, retransmission and liveness loops. They stop
// when ctx is cancelled or Kill is called.
func (n *Node) Start(ctx context.Context) error {
	n.runMu.Lock()
	if n.killed || n.closing.Load() {
		n.runMu.Unlock()
		return ErrNodeClosed
	}
	if n.running {
		n.runMu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(4)
	go n.receiveLoop(n.ctx)
	go n.retransmitLoop(n.ctx)
	go n.livenessLoop(n.ctx)

	// Closing the transport is what unblocks the receive loop.
	go func(ctx context.Context) {
		defer n.wg.Done()
		<-ctx.Done()
		if n.closing.CompareAndSwap(false, true) {
			_ = n.transport.Close()
		}
	}(n.ctx)
	n.runMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"address":  n.self.String(),
	}).Info("Node started")

	n.notice("Connected.")
	return nil
}

// Kill announces our departure, stops every loop and releases the socket.
// It is safe to call more than once.
func (n *Node) Kill() {
	n.killOnce.Do(func() {
		n.runMu.Lock()
		n.killed = true
		running := n.running
		cancel := n.cancel
		n.runMu.Unlock()

		if running && !n.closing.Load() {
			if err := n.broadcastCommand(messaging.Part(n.Name())); err != nil {
				logrus.WithError(err).Debug("Failed to announce departure")
			}
		}

		if n.closing.CompareAndSwap(false, true) {
			_ = n.transport.Close()
		}
		if cancel != nil {
			cancel()
		}
		n.wg.Wait()

		n.connMu.Lock()
		n.connections = make(map[transport.Address]*reliable.Connection)
		n.connMu.Unlock()

		n.events.close()

		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"address":  n.self.String(),
		}).Info("Node stopped")
	})
}

// IsRunning reports whether the loops are active.
func (n *Node) IsRunning() bool {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	return n.running && !n.closing.Load()
}

// Address returns our node address.
func (n *Node) Address() transport.Address {
	return n.self
}

// Name returns our display name.
func (n *Node) Name() string {
	n.nameMu.RLock()
	defer n.nameMu.RUnlock()
	return n.name
}

// MainRoom returns the name of the destination every peer belongs to.
func (n *Node) MainRoom() string {
	return n.options.MainRoom
}

// OnEvent registers a callback for every event. Callbacks run on the
// node's goroutines and must not block for long.
func (n *Node) OnEvent(callback EventCallback) {
	n.events.subscribe(callback)
}

// Events returns the event channel, or nil when Options.EventBuffer is 0.
// Events that do not fit are dropped and counted. The channel is closed by Kill.
func (n *Node) Events() <-chan Event {
	return n.events.ch
}

// Stats returns a snapshot of the protocol counters.
func (n *Node) Stats() Stats {
	return n.metrics.snapshot()
}

// Routes returns the learned forward table.
func (n *Node) Routes() []routing.Route {
	return n.routes.Routes()
}

// KeyState returns the key exchange progress with addr.
func (n *Node) KeyState(addr transport.Address) crypto.State {
	return n.keys.state(addr)
}

func (n *Node) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = n.options.TimeProvider.Now()
	}
	n.events.emit(ev)
}

func (n *Node) notice(format string, args ...interface{}) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	n.emit(Event{Type: EventNotice, Text: text})
}
