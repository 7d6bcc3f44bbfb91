package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrClosed            = errors.New("connection closed")
	ErrChannelNotOpen    = errors.New("data channel not open")
	ErrNoVideoSender     = errors.New("no outgoing video track to replace")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
	ErrMalformedSignal   = errors.New("malformed signal payload")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrDataChannelClosed = errors.New("data channel closed")
)

// Error records the negotiation step that failed for a peer.
type Error struct {
	Op      string
	PeerID  int64
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (peer %d): %v (%s)", e.Op, e.PeerID, e.Err, e.Details)
	}
	return fmt.Sprintf("%s (peer %d): %v", e.Op, e.PeerID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, peerID int64, err error) *Error {
	return &Error{Op: op, PeerID: peerID, Err: err}
}

func wrapError(op string, peerID int64, err error, details string) *Error {
	return &Error{Op: op, PeerID: peerID, Err: err, Details: details}
}
