// Package meshchat implements a serverless chat node that talks over one
// IPv4 multicast group.
//
// Every node is both a chat endpoint and a relay. Packets addressed to
// another node are flooded with a hop budget and relayed at most once per
// node; routes to distant nodes are learned passively from overheard
// traffic. Messages to a peer are delivered reliably through a per-peer
// sliding window with cumulative acknowledgements and retransmission.
//
// # Getting Started
//
//	options := meshchat.NewOptions()
//	options.Name = "alice"
//
//	node, err := meshchat.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Kill()
//
//	node.OnEvent(func(ev meshchat.Event) {
//	    if ev.Type == meshchat.EventChatReceived {
//	        fmt.Printf("[%s] %s: %s\n", ev.Room, ev.Peer.DisplayName(), ev.Message.Text)
//	    }
//	})
//
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	err = node.SendChatMessage(node.MainRoom(), "hello")
//
// # Destinations
//
// Sends go to named destinations. The main room always exists and contains
// every known peer; it is maintained by presence and cannot be replaced.
// [Node.AddDestination] maps any other name to an explicit address set, and
// [Node.StartPrivateChat] creates a destination named after a single peer.
//
// # Presence
//
// Each node broadcasts ALIVE every Options.AliveInterval. Peers not heard
// from for Options.InactivityLimit are evicted and their connection, key and
// routes discarded. Kill broadcasts PART so peers can drop us at once.
//
// # Encryption
//
// Broadcast traffic and handshake commands are sealed with a group key
// derived from Options.GroupSecret. Every new peer gets a pairwise key
// through a PUB/SYM/KEYRECV exchange; once it completes, traffic to that
// peer is sealed with the pairwise key and flagged KEYEXCHANGED.
//
// # Concurrency
//
// Start runs three goroutines: the receive loop, the retransmission loop
// and the liveness loop. All Node methods are safe for concurrent use.
// Event callbacks run on these goroutines and must not block.
//
// # Deterministic Testing
//
// Options.Transport accepts any [transport.Transport]; the testing package
// provides an in-memory medium with configurable links and loss.
// Options.TimeProvider controls the clock used for presence.
package meshchat
