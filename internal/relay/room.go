package relay

// Room is a named set of members keyed by their user id.
type Room struct {
	Name    string
	Members map[int64]*Client
}

func newRoom(name string) *Room {
	return &Room{Name: name, Members: make(map[int64]*Client)}
}

// RoomInfo is the occupancy served on /rooms.
type RoomInfo struct {
	Name    string       `json:"name"`
	Members []MemberInfo `json:"members"`
}

// MemberInfo describes one member of a room.
type MemberInfo struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}
