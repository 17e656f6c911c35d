// Package testing provides an in-memory multicast medium for deterministic
// tests of meshchat nodes.
//
// # Overview
//
// A Medium stands in for the shared multicast group. Each node joins it and
// receives an Endpoint, which satisfies transport.Transport, so a node can
// run unchanged on top of it:
//
//	medium := testing.NewMedium()
//	opts := meshchat.NewOptions()
//	opts.Transport = medium.Join(10)
//
// # Topology
//
// By default every endpoint hears every other one. Calling Link restricts
// the medium to the declared radio links, which is how multi-hop scenarios
// are built:
//
//	medium.Link(10, 30) // A <-> C
//	medium.Link(30, 20) // C <-> B; A and B cannot hear each other
//
// # Verification
//
// Every delivery attempt is recorded. Tests inspect DeliveryLog or filter
// it with Deliveries, and may install a DropFunc to simulate loss.
package testing
