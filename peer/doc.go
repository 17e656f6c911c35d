// Package peer tracks the nodes this node has heard from.
//
// A Registry records each peer's address, display name and the time it was
// last seen. Presence handling refreshes LastSeen on every sighting and
// periodically asks for the peers that have gone quiet:
//
//	reg := peer.NewRegistry(nil)
//	reg.Add(addr, "alice")
//	...
//	for _, p := range reg.Inactive(9*time.Second, self) {
//	    if _, removed := reg.Remove(p.Address); removed {
//	        // notify exactly once
//	    }
//	}
//
// Tests substitute a TimeProvider to drive eviction deterministically.
package peer
