// Package routing implements hop-limited flooding with passive route
// learning.
//
// Every packet a node hears updates its ForwardTable: the packet's source
// is reachable through whichever node transmitted it, at a cost derived
// from the hops it has already spent. Packets not meant for this node are
// relayed at most once, as decided by a ForwardFilter, and only while their
// hop budget lasts.
package routing
