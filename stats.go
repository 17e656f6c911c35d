package meshchat

import "sync/atomic"

// Stats is a snapshot of a node's protocol counters.
type Stats struct {
	PacketsReceived   uint64
	PacketsSent       uint64
	ChecksumErrors    uint64
	Duplicates        uint64
	Forwarded         uint64
	ForwardSuppressed uint64
	HopsExhausted     uint64
	Retransmitted     uint64
	AcksReceived      uint64
	DecryptFailures   uint64
	UnknownCommands   uint64
	WindowFull        uint64
	EventsDropped     uint64
}

type metrics struct {
	packetsReceived   atomic.Uint64
	packetsSent       atomic.Uint64
	checksumErrors    atomic.Uint64
	duplicates        atomic.Uint64
	forwarded         atomic.Uint64
	forwardSuppressed atomic.Uint64
	hopsExhausted     atomic.Uint64
	retransmitted     atomic.Uint64
	acksReceived      atomic.Uint64
	decryptFailures   atomic.Uint64
	unknownCommands   atomic.Uint64
	windowFull        atomic.Uint64
	eventsDropped     atomic.Uint64
}

func (m *metrics) snapshot() Stats {
	return Stats{
		PacketsReceived:   m.packetsReceived.Load(),
		PacketsSent:       m.packetsSent.Load(),
		ChecksumErrors:    m.checksumErrors.Load(),
		Duplicates:        m.duplicates.Load(),
		Forwarded:         m.forwarded.Load(),
		ForwardSuppressed: m.forwardSuppressed.Load(),
		HopsExhausted:     m.hopsExhausted.Load(),
		Retransmitted:     m.retransmitted.Load(),
		AcksReceived:      m.acksReceived.Load(),
		DecryptFailures:   m.decryptFailures.Load(),
		UnknownCommands:   m.unknownCommands.Load(),
		WindowFull:        m.windowFull.Load(),
		EventsDropped:     m.eventsDropped.Load(),
	}
}
