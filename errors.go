package meshchat

import (
	"errors"
	"fmt"

	"github.com/opd-ai/meshchat/transport"
)

// Common errors for meshchat nodes
var (
	// ErrInvalidOptions indicates a configuration that cannot start a node
	ErrInvalidOptions = errors.New("invalid options")

	// ErrNoAddress indicates no node address could be derived
	ErrNoAddress = errors.New("no node address")

	// ErrInvalidAddress indicates the broadcast address or our own address was given as a peer
	ErrInvalidAddress = errors.New("invalid peer address")

	// ErrUnknownPeer indicates the peer is not in the registry
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrConnectionNotOpen indicates a send to a peer without a connection
	ErrConnectionNotOpen = errors.New("connection not open")

	// ErrUnknownDestination indicates a send to an unknown named destination
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrReservedDestination indicates an attempt to replace the main room
	ErrReservedDestination = errors.New("reserved destination")

	// ErrAlreadyRunning indicates Start was called twice
	ErrAlreadyRunning = errors.New("node already running")

	// ErrNodeClosed indicates the node has been killed
	ErrNodeClosed = errors.New("node closed")
)

// NodeError represents an error with additional context
type NodeError struct {
	Op   string            // operation that caused the error
	Addr transport.Address // peer address if relevant
	Err  error             // underlying error
}

func (e *NodeError) Error() string {
	if !e.Addr.IsBroadcast() {
		return fmt.Sprintf("meshchat %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("meshchat %s: %v", e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func newNodeError(op string, addr transport.Address, err error) *NodeError {
	return &NodeError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
