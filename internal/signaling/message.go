package signaling

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
)

// Envelope types on the room bus.
const (
	TypeJoin     = "join"
	TypeSignal   = "signal"
	TypeNewUser  = "new-user"
	TypeUserLeft = "user-left"
)

// MaxUserID bounds randomly generated user ids.
const MaxUserID = 1_000_000

// DefaultUsername is used when no display name is given.
const DefaultUsername = "Me"

var ErrMalformed = errors.New("malformed envelope")

// Envelope is the JSON frame exchanged with the relay bus. PeerID is a
// pointer because 0 is a valid user id.
type Envelope struct {
	Type     string          `json:"type"`
	Room     string          `json:"room"`
	UserID   int64           `json:"userId"`
	Username string          `json:"username,omitempty"`
	Signal   json.RawMessage `json:"signal,omitempty"`
	PeerID   *int64          `json:"peerId,omitempty"`
}

// Target returns the addressee of a signal envelope, if any.
func (e Envelope) Target() (int64, bool) {
	if e.PeerID == nil {
		return 0, false
	}
	return *e.PeerID, true
}

// DecodeEnvelope parses one frame. Frames without a type are rejected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, errors.Join(ErrMalformed, err)
	}
	if env.Type == "" {
		return env, ErrMalformed
	}
	return env, nil
}

// Identity is fixed for the lifetime of a process.
type Identity struct {
	Room     string
	UserID   int64
	Username string
}

// NewIdentity draws a random user id. An empty name becomes DefaultUsername.
func NewIdentity(room, username string) Identity {
	if username == "" {
		username = DefaultUsername
	}
	return Identity{Room: room, UserID: rand.Int64N(MaxUserID), Username: username}
}

// Join announces the identity to the room.
func (id Identity) Join() Envelope {
	return Envelope{Type: TypeJoin, Room: id.Room, UserID: id.UserID, Username: id.Username}
}

// Leave announces departure.
func (id Identity) Leave() Envelope {
	return Envelope{Type: TypeUserLeft, Room: id.Room, UserID: id.UserID}
}

// SignalTo wraps a negotiation payload addressed to peerID.
func (id Identity) SignalTo(peerID int64, payload json.RawMessage) Envelope {
	return Envelope{
		Type:     TypeSignal,
		Room:     id.Room,
		UserID:   id.UserID,
		Username: id.Username,
		Signal:   payload,
		PeerID:   &peerID,
	}
}
