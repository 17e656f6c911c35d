// Package reliable provides per-peer delivery state: a send window that
// holds packets until they are cumulatively acknowledged, and a receive
// window that suppresses duplicates.
//
// Sequence numbers are byte offsets. Each packet added to a SendBuffer
// advances the counter by the packet's encoded length:
//
//	conn := reliable.NewConnection(peerAddr, reliable.DefaultWindowSize)
//	seq, err := conn.Send.Add(pkt)
//	if errors.Is(err, reliable.ErrWindowFull) {
//	    // refuse the send; the caller may retry later
//	}
//
// Acknowledgements are cumulative: Ack(n) releases every packet whose
// sequence number is at most n. Retransmission is left to the owner, which
// periodically resends everything Unacked returns.
package reliable
