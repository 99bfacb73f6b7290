package main

import (
	"sync"
)

// peer is anything the registry can hold and the router can send to.
// Identity is the handle itself, so implementations must be pointers.
type peer interface {
	id() string
	send(frame []byte) error
}

// assignment is a connection's room, or nothing before its first join.
type assignment struct {
	roomID string
}

var unassigned = assignment{}

func assignedTo(roomID string) assignment {
	return assignment{roomID: roomID}
}

func (a assignment) room() (string, bool) {
	return a.roomID, a.roomID != ""
}

type members map[peer]struct{}

// registry maps every live connection to its room. Rooms are indexed
// separately so a fan-out does not scan unrelated connections, and a room
// is forgotten as soon as its last member leaves.
type registry struct {
	mu    sync.RWMutex
	peers map[peer]assignment
	rooms map[string]members
}

func newRegistry() *registry {
	return &registry{
		peers: make(map[peer]assignment),
		rooms: make(map[string]members),
	}
}

// register adds p with no room. Registering twice keeps the current room.
func (r *registry) register(p peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[p]; !ok {
		r.peers[p] = unassigned
	}
}

// assignRoom moves p into roomID, registering it if needed.
func (r *registry) assignRoom(p peer, roomID string) error {
	if roomID == "" {
		return errInvalidJoinPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.peers[p]; ok {
		if room, ok := prev.room(); ok {
			if room == roomID {
				return nil
			}
			r.leave(p, room)
		}
	}
	r.peers[p] = assignedTo(roomID)
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(members)
		incr("rooms", 1)
	}
	r.rooms[roomID][p] = struct{}{}
	return nil
}

// unregister forgets p. It reports whether p was registered.
func (r *registry) unregister(p peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.peers[p]
	if !ok {
		return false
	}
	if room, ok := a.room(); ok {
		r.leave(p, room)
	}
	delete(r.peers, p)
	return true
}

// leave must be called with mu held.
func (r *registry) leave(p peer, roomID string) {
	m, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(m, p)
	if len(m) == 0 {
		delete(r.rooms, roomID)
		decr("rooms", 1)
	}
}

// membersOf returns a copy of the members of roomID.
func (r *registry) membersOf(roomID string) []peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.rooms[roomID]
	out := make([]peer, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

func (r *registry) roomOf(p peer) assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.peers[p]
}

// all returns a copy of every registered connection, in a room or not.
func (r *registry) all() []peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]peer, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *registry) stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms), len(r.peers)
}
