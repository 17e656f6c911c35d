package meshchat

import (
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/peer"
)

// EventType identifies what an Event reports.
type EventType uint8

const (
	// EventChatReceived carries a chat message addressed to us.
	EventChatReceived EventType = iota
	// EventPeerJoined reports a newly discovered peer.
	EventPeerJoined
	// EventPeerLeft reports a peer that left or went silent.
	EventPeerLeft
	// EventPrivateChatStarted reports a new private-chat destination.
	EventPrivateChatStarted
	// EventNameChanged reports a peer's new display name.
	EventNameChanged
	// EventNotice carries a textual system notice.
	EventNotice
)

func (t EventType) String() string {
	switch t {
	case EventChatReceived:
		return "chat"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventPrivateChatStarted:
		return "private-chat"
	case EventNameChanged:
		return "name-changed"
	case EventNotice:
		return "notice"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event is a notification for the presentation layer. Fields irrelevant to
// the Type are zero.
type Event struct {
	Type    EventType
	Time    time.Time
	Peer    peer.Peer
	Room    string
	Message *messaging.ChatMessage
	OldName string
	Text    string
}

// EventCallback is called for every event, outside the node's locks.
type EventCallback func(Event)

// dispatcher fans events out to callbacks and the optional channel.
type dispatcher struct {
	mu        sync.RWMutex
	callbacks []EventCallback
	ch        chan Event
	closed    bool
	onDrop    func()
}

func newDispatcher(buffer int, onDrop func()) *dispatcher {
	d := &dispatcher{onDrop: onDrop}
	if buffer > 0 {
		d.ch = make(chan Event, buffer)
	}
	return d
}

func (d *dispatcher) subscribe(cb EventCallback) {
	d.mu.Lock()
	d.callbacks = append(d.callbacks, cb)
	d.mu.Unlock()
}

func (d *dispatcher) emit(ev Event) {
	d.mu.RLock()
	callbacks := append([]EventCallback(nil), d.callbacks...)
	if d.ch != nil && !d.closed {
		select {
		case d.ch <- ev:
		default:
			if d.onDrop != nil {
				d.onDrop()
			}
		}
	}
	d.mu.RUnlock()

	for _, cb := range callbacks {
		cb(ev)
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil && !d.closed {
		close(d.ch)
	}
	d.closed = true
}
