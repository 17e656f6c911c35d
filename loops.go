package meshchat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/messaging"
)

// retransmitLoop resends every unacknowledged packet on each tick.
func (n *Node) retransmitLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.options.RetransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.retransmit()
		}
	}
}

func (n *Node) retransmit() {
	for _, conn := range n.connectionSnapshot() {
		for _, pkt := range conn.Send.Unacked() {
			if n.closing.Load() {
				return
			}
			if err := n.transmit(pkt); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "retransmit",
					"peer":     conn.Peer.String(),
					"seq":      pkt.Seq,
					"error":    err.Error(),
				}).Debug("Retransmission failed")
				continue
			}
			n.metrics.retransmitted.Add(1)
		}
	}
}

// livenessLoop announces us immediately and then on every tick, and evicts
// peers that have been silent for too long.
func (n *Node) livenessLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.options.AliveInterval)
	defer ticker.Stop()

	n.announce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.announce()
			n.evictInactive()
		}
	}
}

func (n *Node) announce() {
	if n.closing.Load() {
		return
	}
	if err := n.broadcastCommand(messaging.Alive(n.Name())); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "announce",
			"error":    err.Error(),
		}).Warn("Presence beacon failed")
	}
}

// evictInactive removes every peer silent for longer than the inactivity
// limit and returns how many were removed.
func (n *Node) evictInactive() int {
	removed := 0
	for _, p := range n.peers.Inactive(n.options.InactivityLimit, n.self) {
		if n.removePeer(p.Address, "inactive") {
			removed++
		}
	}
	return removed
}
