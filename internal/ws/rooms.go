package ws

import (
	"sync"
)

// roomMember is what the room remembers about a joined connection, so that
// leave/disconnect events can name who left without the caller re-sending
// identity.
type roomMember struct {
	userID   string
	userName string
}

// RoomTable tracks per-alert chat membership. A room is keyed 1:1 by alert
// id; membership is connection-scoped and transient — nothing here survives
// the process or the connection.
//
// The reverse index (connection → joined rooms) exists because the
// transport has no room concept of its own: when a connection drops,
// nothing would ever evict it from rooms it had joined, and broadcasts
// would keep hitting a dead handle. EvictConn walks the reverse index on
// disconnect.
type RoomTable struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]roomMember
	joined map[Conn]map[string]struct{}
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		rooms:  make(map[string]map[Conn]roomMember),
		joined: make(map[Conn]map[string]struct{}),
	}
}

// Join adds the connection to the room, replacing any earlier membership of
// the same connection (a re-join just refreshes the display name).
func (t *RoomTable) Join(room string, conn Conn, userID, userName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rooms[room]; !ok {
		t.rooms[room] = make(map[Conn]roomMember)
	}
	t.rooms[room][conn] = roomMember{userID: userID, userName: userName}

	if _, ok := t.joined[conn]; !ok {
		t.joined[conn] = make(map[string]struct{})
	}
	t.joined[conn][room] = struct{}{}
}

// Leave removes the connection from one room. Returns what the room knew
// about the member, and false if it was never there.
func (t *RoomTable) Leave(room string, conn Conn) (roomMember, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(room, conn)
}

func (t *RoomTable) leaveLocked(room string, conn Conn) (roomMember, bool) {
	members, ok := t.rooms[room]
	if !ok {
		return roomMember{}, false
	}
	m, ok := members[conn]
	if !ok {
		return roomMember{}, false
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(t.rooms, room)
	}
	if set, ok := t.joined[conn]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(t.joined, conn)
		}
	}
	return m, true
}

// Members returns a snapshot of the room's connections. Snapshotting under
// the read lock lets the caller send without holding it — a send can take
// long enough that holding the lock would serialize unrelated rooms.
func (t *RoomTable) Members(room string) []Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.rooms[room]
	out := make([]Conn, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// Member looks up one connection's membership record in a room.
func (t *RoomTable) Member(room string, conn Conn) (roomMember, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.rooms[room][conn]
	return m, ok
}

// EvictConn removes the connection from every room it joined and returns
// room → membership record so the caller can announce the departures.
func (t *RoomTable) EvictConn(conn Conn) map[string]roomMember {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := make(map[string]roomMember)
	for room := range t.joined[conn] {
		if m, ok := t.leaveLocked(room, conn); ok {
			evicted[room] = m
		}
	}
	return evicted
}
