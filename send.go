package meshchat

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/limits"
	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/reliable"
	"github.com/opd-ai/meshchat/routing"
	"github.com/opd-ai/meshchat/transport"
)

// payloadKind selects the flags and key for an outgoing reliable payload.
type payloadKind uint8

const (
	kindText payloadKind = iota
	kindChat
	kindHandshake
)

// SendChatMessage sends text as a chat message to every address of the
// named destination. Failures for individual addresses are joined.
func (n *Node) SendChatMessage(destination, text string) error {
	addrs, ok := n.destinations.get(destination)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}

	msg := &messaging.ChatMessage{
		Sender:      n.self,
		Timestamp:   n.options.TimeProvider.Now(),
		Name:        n.Name(),
		Color:       n.options.Color,
		TextColor:   n.options.TextColor,
		Font:        n.options.Font,
		FontSize:    n.options.FontSize,
		Destination: n.labelFor(destination),
		Text:        text,
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	return n.fanOut(addrs, payload, kindChat)
}

// SendText sends a plain control payload to every address of the named
// destination.
func (n *Node) SendText(destination, text string) error {
	addrs, ok := n.destinations.get(destination)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}
	return n.fanOut(addrs, []byte(text), kindText)
}

// SendCommand sends a protocol command to every address of the named destination.
func (n *Node) SendCommand(destination string, cmd messaging.Command) error {
	return n.SendText(destination, cmd.String())
}

// labelFor names a destination as the receiver should file it. Private
// rooms are labelled by the receiver's view, which is our name.
func (n *Node) labelFor(destination string) string {
	if destination == n.options.MainRoom {
		return destination
	}
	return n.Name()
}

func (n *Node) fanOut(addrs []transport.Address, payload []byte, kind payloadKind) error {
	var errs []error
	for _, addr := range addrs {
		if err := n.sendReliable(addr, payload, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Node) sendHandshake(dst transport.Address, cmd messaging.Command) error {
	return n.sendReliable(dst, cmd.Bytes(), kindHandshake)
}

// sendReliable encrypts payload for dst, stamps it through the send window
// and transmits it. A full window refuses the send.
func (n *Node) sendReliable(dst transport.Address, payload []byte, kind payloadKind) error {
	if err := limits.ValidatePlaintextPayload(payload); err != nil {
		return newNodeError("send", dst, err)
	}

	conn, ok := n.Connection(dst)
	if !ok {
		return newNodeError("send", dst, ErrConnectionNotOpen)
	}
	if !conn.Send.CanSend() {
		n.metrics.windowFull.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "sendReliable",
			"peer":     dst.String(),
			"pending":  conn.Send.Len(),
		}).Warn("Send window full, message dropped")
		return newNodeError("send", dst, reliable.ErrWindowFull)
	}

	pkt := transport.NewPacket(n.self, dst, n.options.MaxHops, nil)
	if kind == kindChat {
		pkt.Flags = pkt.Flags.With(transport.FlagChatMessage)
	}

	key := n.groupKey
	if kind != kindHandshake {
		if peerKey, ok := n.keys.sendKey(dst); ok {
			key = peerKey
			pkt.Flags = pkt.Flags.With(transport.FlagKeyExchanged)
		}
	}
	ciphertext, err := crypto.EncryptSymmetric(payload, key)
	if err != nil {
		return newNodeError("encrypt", dst, err)
	}
	pkt.Flags = pkt.Flags.With(transport.FlagEncryption)
	pkt.SetPayload(ciphertext)

	if _, err := conn.Send.Add(pkt); err != nil {
		n.metrics.windowFull.Add(1)
		return newNodeError("send", dst, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "sendReliable",
		"peer":     dst.String(),
		"next_hop": n.routes.NextHop(dst).String(),
		"seq":      pkt.Seq,
		"length":   pkt.Length(),
	}).Debug("Sending packet")

	return n.transmit(pkt)
}

// broadcastCommand sends an unreliable command to every node, encrypted
// under the group key.
func (n *Node) broadcastCommand(cmd messaging.Command) error {
	ciphertext, err := crypto.EncryptSymmetric(cmd.Bytes(), n.groupKey)
	if err != nil {
		return err
	}
	pkt := transport.NewPacket(n.self, transport.BroadcastAddress, n.options.MaxHops, ciphertext)
	pkt.Flags = pkt.Flags.With(transport.FlagEncryption)
	pkt.Seq = n.beaconSeq.Add(1)
	return n.transmit(pkt)
}

// SendAck acknowledges a packet with sequence number seq from dst. The
// acknowledgement number is seq+1.
func (n *Node) SendAck(dst transport.Address, seq uint32) error {
	pkt := transport.NewPacket(n.self, dst, n.options.MaxHops, nil)
	pkt.Flags = pkt.Flags.With(transport.FlagAck)
	pkt.Ack = seq + 1
	pkt.Seq = n.beaconSeq.Add(1)
	return n.transmit(pkt)
}

// Acknowledge applies a cumulative acknowledgement from addr to our send window.
func (n *Node) Acknowledge(addr transport.Address, ack uint32) error {
	conn, ok := n.Connection(addr)
	if !ok {
		return newNodeError("acknowledge", addr, ErrConnectionNotOpen)
	}
	conn.Send.Ack(ack)
	return nil
}

// ForwardPacket relays a packet that is not (only) for us. It reports
// whether the packet went out: each packet is relayed at most once, and
// only while its hop budget lasts.
func (n *Node) ForwardPacket(pkt *transport.Packet) bool {
	if !n.forwarded.ShouldForward(pkt) {
		n.metrics.forwardSuppressed.Add(1)
		return false
	}
	return n.relay(pkt)
}

// relay retransmits a copy of pkt with one hop less. The caller has
// already checked the forward filter.
func (n *Node) relay(pkt *transport.Packet) bool {
	out := pkt.Clone()
	if !routing.PrepareForward(out) {
		n.metrics.hopsExhausted.Add(1)
		return false
	}

	if err := n.transmit(out); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "relay",
			"source":   pkt.Source.String(),
			"error":    err.Error(),
		}).Debug("Relay failed")
		return false
	}
	n.metrics.forwarded.Add(1)
	return true
}

// StartPrivateChat creates a destination named after the peer at addr and
// asks the peer to open the matching one. It returns the destination name.
func (n *Node) StartPrivateChat(addr transport.Address) (string, error) {
	p, room, _ := n.openPrivateRoom(addr, true)
	if room == "" {
		return "", newNodeError("private chat", addr, ErrUnknownPeer)
	}

	if err := n.sendReliable(addr, messaging.Private(n.Name()).Bytes(), kindText); err != nil {
		return room, err
	}

	n.emit(Event{Type: EventPrivateChatStarted, Peer: p, Room: room})
	return room, nil
}

// SetName changes our display name and tells the main room.
func (n *Node) SetName(name string) error {
	if err := messaging.ValidateName(name); err != nil {
		return err
	}
	if name == n.options.MainRoom {
		return fmt.Errorf("%w: %q names the main room", messaging.ErrInvalidName, name)
	}

	n.nameMu.Lock()
	old := n.name
	n.name = name
	n.nameMu.Unlock()

	if old == name {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetName",
		"old_name": old,
		"new_name": name,
	}).Info("Name changed")

	return n.SendCommand(n.options.MainRoom, messaging.NameChange(old, name))
}

func (n *Node) transmit(pkt *transport.Packet) error {
	if err := limits.ValidatePayload(pkt.Payload); err != nil {
		return err
	}
	if err := n.transport.Send(pkt); err != nil {
		return newNodeError("transmit", pkt.Destination, err)
	}
	n.metrics.packetsSent.Add(1)
	return nil
}
