package meshchat

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/limits"
	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/peer"
	"github.com/opd-ai/meshchat/transport"
)

// receiveLoop reads datagrams until the transport is closed. A read error
// while not shutting down is reported once as a lost connection.
func (n *Node) receiveLoop(ctx context.Context) {
	defer n.wg.Done()

	buf := make([]byte, limits.MaxDatagram)
	for {
		size, from, err := n.transport.Receive(buf)
		if err != nil {
			if n.closing.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "receiveLoop",
				"error":    err.Error(),
			}).Error("Receive failed")
			n.notice("Connection lost.")
			return
		}
		n.handleDatagram(buf[:size], from)
	}
}

// handleDatagram processes one datagram heard from the network-layer
// sender from.
func (n *Node) handleDatagram(data []byte, from transport.Address) {
	pkt, err := transport.Decode(data)
	if err != nil {
		n.metrics.checksumErrors.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"from":     from.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed packet")
		return
	}
	n.metrics.packetsReceived.Add(1)

	// Our own packets and our own relays come back through loopback.
	if pkt.Source == n.self || from == n.self {
		return
	}
	if !from.IsBroadcast() {
		n.routes.Learn(pkt, from)
	}

	switch {
	case pkt.Destination.IsBroadcast():
		n.handleBroadcast(pkt)
	case pkt.Destination != n.self:
		n.ForwardPacket(pkt)
	default:
		n.handleUnicast(pkt)
	}
}

// handleBroadcast processes a packet for every node, then relays it once.
func (n *Node) handleBroadcast(pkt *transport.Packet) {
	if !n.forwarded.ShouldForward(pkt) {
		n.metrics.forwardSuppressed.Add(1)
		return
	}

	if payload, ok := n.openPayload(pkt); ok {
		cmd, err := messaging.ParseCommand(payload)
		switch {
		case err != nil:
			n.metrics.unknownCommands.Add(1)
		case cmd.Code == messaging.CmdAlive:
			n.handleAlive(pkt.Source, cmd.Arg(0))
		case cmd.Code == messaging.CmdPart:
			n.removePeer(pkt.Source, "left")
		default:
			n.metrics.unknownCommands.Add(1)
		}
	}

	n.relay(pkt)
}

// handleUnicast processes a packet addressed to us.
func (n *Node) handleUnicast(pkt *transport.Packet) {
	src := pkt.Source

	if pkt.IsFlagSet(transport.FlagAck) {
		n.metrics.acksReceived.Add(1)
		n.peers.Touch(src)
		if err := n.Acknowledge(src, pkt.Ack); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleUnicast",
				"peer":     src.String(),
				"ack":      pkt.Ack,
			}).Debug("Acknowledgement without a connection")
		}
		return
	}

	p, _ := n.ensurePeer(src, "", false)

	if err := n.SendAck(src, pkt.Seq); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleUnicast",
			"peer":     src.String(),
			"error":    err.Error(),
		}).Warn("Could not send acknowledgement")
	}

	conn, ok := n.Connection(src)
	if !ok {
		return
	}
	if !conn.Receive.Accept(pkt.Seq) {
		n.metrics.duplicates.Add(1)
		return
	}

	payload, ok := n.openPayload(pkt)
	if !ok {
		return
	}

	if pkt.IsFlagSet(transport.FlagChatMessage) {
		msg := &messaging.ChatMessage{}
		if err := msg.UnmarshalBinary(payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleUnicast",
				"peer":     src.String(),
				"error":    err.Error(),
			}).Debug("Dropping malformed chat message")
			return
		}
		n.handleChat(p, msg)
		return
	}

	cmd, err := messaging.ParseCommand(payload)
	if err != nil {
		n.metrics.unknownCommands.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "handleUnicast",
			"peer":     src.String(),
			"error":    err.Error(),
		}).Debug("Dropping unparseable command")
		return
	}
	n.handleCommand(p, cmd)
}

// openPayload returns the plaintext of pkt. Packets flagged KEYEXCHANGED
// use the key agreed with the source; other encrypted packets use the
// group key.
func (n *Node) openPayload(pkt *transport.Packet) ([]byte, bool) {
	if !pkt.IsFlagSet(transport.FlagEncryption) {
		return pkt.Payload, true
	}

	key := n.groupKey
	if pkt.IsFlagSet(transport.FlagKeyExchanged) {
		peerKey, ok := n.keys.receiveKey(pkt.Source)
		if !ok {
			n.metrics.decryptFailures.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "openPayload",
				"peer":     pkt.Source.String(),
			}).Debug("No key for peer, dropping payload")
			return nil, false
		}
		key = peerKey
	}

	plaintext, err := crypto.DecryptSymmetric(pkt.Payload, key)
	if err != nil {
		n.metrics.decryptFailures.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "openPayload",
			"peer":     pkt.Source.String(),
			"error":    err.Error(),
		}).Debug("Decryption failed")
		return nil, false
	}

	// A packet under the peer key proves the peer holds it.
	if pkt.IsFlagSet(transport.FlagKeyExchanged) {
		if kx, ok := n.keys.get(pkt.Source); ok {
			kx.Confirm()
		}
	}
	return plaintext, true
}

// handleChat delivers a chat record. A sender first seen through a chat
// takes the name carried in the record.
func (n *Node) handleChat(p peer.Peer, msg *messaging.ChatMessage) {
	if p.Name == "" && messaging.ValidateName(msg.Name) == nil {
		n.renamePeer(p.Address, "", msg.Name)
	}
	n.peers.SetAttributes(p.Address, peer.Attributes{Color: msg.Color, TextColor: msg.TextColor})
	if current, ok := n.peers.Get(p.Address); ok {
		p = current
	}

	room := msg.Destination
	if room != n.options.MainRoom {
		current, label, opened := n.openPrivateRoom(p.Address, false)
		if label == "" {
			return
		}
		p, room = current, label
		if opened {
			n.emit(Event{Type: EventPrivateChatStarted, Peer: p, Room: room})
		}
	}

	n.emit(Event{Type: EventChatReceived, Peer: p, Room: room, Message: msg})
}

func (n *Node) handleCommand(p peer.Peer, cmd messaging.Command) {
	src := p.Address

	switch cmd.Code {
	case messaging.CmdAlive:
		n.handleAlive(src, cmd.Arg(0))

	case messaging.CmdPrivate:
		if name := cmd.Arg(0); p.Name != name && messaging.ValidateName(name) == nil {
			n.renamePeer(src, p.Name, name)
		}
		current, room, opened := n.openPrivateRoom(src, true)
		if opened {
			n.emit(Event{Type: EventPrivateChatStarted, Peer: current, Room: room})
		}

	case messaging.CmdNameChange:
		name := cmd.Arg(1)
		if err := messaging.ValidateName(name); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleCommand",
				"peer":     src.String(),
				"error":    err.Error(),
			}).Debug("Ignoring invalid name")
			return
		}
		n.renamePeer(src, p.Name, name)

	case messaging.CmdPublicKey, messaging.CmdSymmetricKey, messaging.CmdKeyReceived:
		n.handleHandshake(src, cmd)

	case messaging.CmdPart:
		n.removePeer(src, "left")

	default:
		n.metrics.unknownCommands.Add(1)
	}
}

// handleAlive records a presence beacon from src. Unknown peers are added
// and a key exchange starts with them.
func (n *Node) handleAlive(src transport.Address, name string) {
	if messaging.ValidateName(name) != nil {
		name = ""
	}

	prev, known := n.peers.Get(src)
	n.ensurePeer(src, name, true)
	if known && name != "" && prev.Name != name {
		n.renamePeer(src, prev.Name, name)
	}
}

// renamePeer gives src a new name and moves its private room along.
func (n *Node) renamePeer(src transport.Address, oldName, newName string) {
	if _, ok := n.peers.Rename(src, newName); !ok {
		return
	}

	n.destinations.rename(n.roomLabel(src, oldName), n.roomLabel(src, newName))

	p, _ := n.peers.Get(src)
	n.emit(Event{Type: EventNameChanged, Peer: p, OldName: oldName})
}
