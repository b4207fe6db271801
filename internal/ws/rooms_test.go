package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomTable_JoinAndMembers(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomTable()
	a := &fakeConn{}
	b := &fakeConn{}

	rooms.Join("alert-1", a, "alice", "Alice")
	rooms.Join("alert-1", b, "bob", "Bob")
	rooms.Join("alert-2", a, "alice", "Alice")

	req.Len(rooms.Members("alert-1"), 2)
	req.Len(rooms.Members("alert-2"), 1)
	req.Empty(rooms.Members("alert-3"))

	m, ok := rooms.Member("alert-1", b)
	req.True(ok)
	req.Equal("bob", m.userID)
	req.Equal("Bob", m.userName)
}

func TestRoomTable_Leave(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomTable()
	a := &fakeConn{}

	rooms.Join("alert-1", a, "alice", "Alice")

	m, ok := rooms.Leave("alert-1", a)
	req.True(ok)
	req.Equal("alice", m.userID)
	req.Empty(rooms.Members("alert-1"))

	// Leaving a room you're not in is a quiet no-op.
	_, ok = rooms.Leave("alert-1", a)
	req.False(ok)
	_, ok = rooms.Leave("never-existed", a)
	req.False(ok)
}

func TestRoomTable_EvictConn_RemovesFromAllRooms(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomTable()
	gone := &fakeConn{}
	stays := &fakeConn{}

	rooms.Join("alert-1", gone, "alice", "Alice")
	rooms.Join("alert-2", gone, "alice", "Alice")
	rooms.Join("alert-1", stays, "bob", "Bob")

	evicted := rooms.EvictConn(gone)
	req.Len(evicted, 2)
	req.Equal("alice", evicted["alert-1"].userID)
	req.Equal("alice", evicted["alert-2"].userID)

	// The dead connection is gone everywhere; nobody else was touched.
	req.Len(rooms.Members("alert-1"), 1)
	req.Empty(rooms.Members("alert-2"))

	// A second eviction finds nothing.
	req.Empty(rooms.EvictConn(gone))
}
