// Package peer tracks one connection per remote participant.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/rtc"
)

var ErrUnknownPeer = errors.New("unknown peer")

// State of a peer entry.
type State int

const (
	StateNegotiating State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "closed"
	}
}

// Factory creates connections; rtc.Factory satisfies it.
type Factory interface {
	Create(role rtc.Role, peerID int64, peerName string, local *media.Stream) (rtc.Connection, error)
}

// Entry is a snapshot of one remote participant.
type Entry struct {
	PeerID      int64
	DisplayName string
	Role        rtc.Role
	State       State
	Conn        rtc.Connection
}

// Table holds at most one entry per peer id, in insertion order.
type Table struct {
	factory Factory
	log     zerolog.Logger

	mu      sync.Mutex
	local   *media.Stream
	entries map[int64]*Entry
	order   []int64
}

func NewTable(factory Factory, log zerolog.Logger) *Table {
	return &Table{
		factory: factory,
		log:     logging.Module(log, "peer"),
		entries: make(map[int64]*Entry),
	}
}

// SetLocal sets the stream attached to connections created from now on.
func (t *Table) SetLocal(s *media.Stream) {
	t.mu.Lock()
	t.local = s
	t.mu.Unlock()
}

// Ensure returns the entry for peerID, creating a connection in the given
// role when none exists. created reports whether a new entry was made.
func (t *Table) Ensure(peerID int64, name string, role rtc.Role) (Entry, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[peerID]; ok {
		return *e, false, nil
	}

	conn, err := t.factory.Create(role, peerID, name, t.local)
	if err != nil {
		return Entry{}, false, fmt.Errorf("create connection to %d: %w", peerID, err)
	}

	e := &Entry{PeerID: peerID, DisplayName: name, Role: role, State: StateNegotiating, Conn: conn}
	t.entries[peerID] = e
	t.order = append(t.order, peerID)
	t.log.Debug().Int64("peer", peerID).Str("role", role.String()).Msg("peer added")
	return *e, true, nil
}

// DispatchSignal hands a negotiation payload to the peer's connection.
func (t *Table) DispatchSignal(peerID int64, payload json.RawMessage) error {
	t.mu.Lock()
	e, ok := t.entries[peerID]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	return e.Conn.Signal(payload)
}

// MarkConnected records that media or data has arrived from the peer.
func (t *Table) MarkConnected(peerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peerID]
	if !ok {
		return false
	}
	e.State = StateConnected
	return true
}

// Remove closes and forgets the peer. It is a no-op for unknown ids.
func (t *Table) Remove(peerID int64) bool {
	return t.remove(peerID, nil)
}

// RemoveConn removes the peer only while it still owns conn, so a late close
// from a replaced connection leaves the new one alone.
func (t *Table) RemoveConn(peerID int64, conn rtc.Connection) bool {
	if conn == nil {
		return false
	}
	return t.remove(peerID, conn)
}

func (t *Table) remove(peerID int64, conn rtc.Connection) bool {
	t.mu.Lock()
	e, ok := t.entries[peerID]
	if !ok || (conn != nil && e.Conn != conn) {
		t.mu.Unlock()
		return false
	}
	delete(t.entries, peerID)
	for i, id := range t.order {
		if id == peerID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	e.State = StateClosed
	if err := e.Conn.Close(); err != nil {
		t.log.Debug().Err(err).Int64("peer", peerID).Msg("close connection")
	}
	t.log.Debug().Int64("peer", peerID).Msg("peer removed")
	return true
}

// Get returns a copy of the entry.
func (t *Table) Get(peerID int64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peerID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// All returns copies of every entry in insertion order.
func (t *Table) All() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.entries[id])
	}
	return out
}

// Clear removes every peer.
func (t *Table) Clear() {
	for _, e := range t.All() {
		t.Remove(e.PeerID)
	}
}
