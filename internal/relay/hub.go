// Package relay is the room bus: it announces joiners to a room and routes
// signaling envelopes between members. It never sees media.
package relay

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

type inbound struct {
	client *Client
	env    signaling.Envelope
	raw    []byte
}

// Hub owns every room. All state is touched only by the Run goroutine.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan chan []RoomInfo
	done       chan struct{}

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		queries:    make(chan chan []RoomInfo),
		done:       make(chan struct{}),
		log:        logging.Module(log, "relay"),
	}
}

// Run processes registrations and envelopes until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			c.log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("client registered")

		case c := <-h.unregister:
			// Socket loss is not a departure; peers only drop on user-left
			// or their own connection failure.
			h.detach(c)
			close(c.send)
			c.log.Debug().Msg("client unregistered")

		case in := <-h.inbound:
			h.route(in)

		case reply := <-h.queries:
			reply <- h.snapshot()
		}
	}
}

// Rooms returns current occupancy sorted by room name.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	select {
	case h.queries <- reply:
	case <-h.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) route(in inbound) {
	c, env := in.client, in.env

	if env.Type == signaling.TypeJoin {
		h.join(c, env)
		return
	}

	room := h.roomOf(c)
	if room == nil {
		c.log.Debug().Str("type", env.Type).Msg("envelope before join, dropping")
		return
	}

	switch env.Type {
	case signaling.TypeSignal:
		if target, ok := env.Target(); ok {
			if member, ok := room.Members[target]; ok {
				h.deliver(member, in.raw)
				return
			}
		}
		h.fanout(room, c, in.raw)

	case signaling.TypeUserLeft:
		h.fanout(room, c, in.raw)
		h.detach(c)
		c.log.Info().Str("room", room.Name).Int64("user", c.userID).Msg("user left")

	default:
		h.fanout(room, c, in.raw)
	}
}

func (h *Hub) join(c *Client, env signaling.Envelope) {
	if env.Room == "" {
		c.log.Debug().Msg("join without room, dropping")
		return
	}
	h.detach(c)

	room, ok := h.rooms[env.Room]
	if !ok {
		room = newRoom(env.Room)
		h.rooms[env.Room] = room
		h.log.Info().Str("room", room.Name).Msg("room created")
	}
	if stale, ok := room.Members[env.UserID]; ok && stale != c {
		stale.room = ""
	}

	c.room, c.userID, c.username = room.Name, env.UserID, env.Username
	room.Members[env.UserID] = c
	c.log.Info().Str("room", room.Name).Int64("user", env.UserID).Int("members", len(room.Members)).Msg("user joined")

	announce, err := json.Marshal(signaling.Envelope{
		Type:     signaling.TypeNewUser,
		Room:     room.Name,
		UserID:   env.UserID,
		Username: env.Username,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encode new-user")
		return
	}
	h.fanout(room, c, announce)
}

func (h *Hub) roomOf(c *Client) *Room {
	if c.room == "" {
		return nil
	}
	room, ok := h.rooms[c.room]
	if !ok || room.Members[c.userID] != c {
		return nil
	}
	return room
}

// detach removes c from its room if it still holds the membership.
func (h *Hub) detach(c *Client) {
	room := h.roomOf(c)
	c.room = ""
	if room == nil {
		return
	}
	delete(room.Members, c.userID)
	if len(room.Members) == 0 {
		delete(h.rooms, room.Name)
		h.log.Info().Str("room", room.Name).Msg("room deleted")
	}
}

func (h *Hub) fanout(room *Room, from *Client, msg []byte) {
	for _, member := range room.Members {
		if member != from {
			h.deliver(member, msg)
		}
	}
}

// deliver never blocks the hub; a member that cannot keep up loses frames.
func (h *Hub) deliver(to *Client, msg []byte) {
	select {
	case to.send <- msg:
	default:
		to.log.Warn().Msg("send buffer full, dropping envelope")
	}
}

func (h *Hub) snapshot() []RoomInfo {
	out := make([]RoomInfo, 0, len(h.rooms))
	for _, room := range h.rooms {
		info := RoomInfo{Name: room.Name}
		for _, m := range room.Members {
			info.Members = append(info.Members, MemberInfo{UserID: m.userID, Username: m.username})
		}
		sort.Slice(info.Members, func(i, j int) bool { return info.Members[i].UserID < info.Members[j].UserID })
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
