package rtc

import (
	"encoding/json"

	"github.com/BioHazard786/Huddle/internal/media"
)

// Role decides who creates the offer.
type Role int

const (
	RoleResponder Role = iota
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// EventKind tags an Event.
type EventKind int

const (
	// EventSignal carries local negotiation data to be relayed to the peer.
	EventSignal EventKind = iota
	// EventStream reports the first track of a new remote stream.
	EventStream
	// EventData carries one inbound data-channel frame.
	EventData
	// EventClosed reports close or failure. Err is nil for a clean close.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventStream:
		return "stream"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Data is an inbound data-channel frame.
type Data struct {
	Bytes    []byte
	IsString bool
}

// Event is emitted by a Connection on its factory's event channel.
type Event struct {
	Kind     EventKind
	PeerID   int64
	PeerName string
	Conn     Connection

	Signal json.RawMessage
	Stream *RemoteStream
	Data   Data
	Err    error
}

// Connection is a negotiated point-to-point link with one remote peer.
type Connection interface {
	// Signal feeds inbound negotiation data. Payloads are applied in order.
	Signal(payload json.RawMessage) error
	// SendText sends a text frame over the data channel.
	SendText(text string) error
	// SendBinary sends a binary frame over the data channel.
	SendBinary(data []byte) error
	// ReplaceVideoTrack swaps the outgoing video track without renegotiating.
	ReplaceVideoTrack(track *media.Track) error
	// Close releases the connection and everything attached to it.
	Close() error
}
