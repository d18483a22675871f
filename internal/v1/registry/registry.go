// Package registry implements the in-memory room membership table: which
// public keys are present in which room, and how to reach their live
// connections for fan-out. It holds no persistent state — that is the
// Store's job — and knows nothing about the wire protocol.
package registry

import (
	"sync"

	"github.com/roomfabric/hub/internal/v1/metrics"
)

// Participant is a room member's display identity.
type Participant struct {
	Name      string
	PublicKey string
}

// Connection is the minimal surface the registry needs to forward a frame
// to a room member. Send is expected to be non-blocking: a slow or gone
// connection must not stall the caller.
type Connection interface {
	Send(frame []byte) bool
}

// Room holds one room's participants and their live connections behind a
// mutex scoped to that room alone, so unrelated rooms never contend.
type Room struct {
	name string

	mu           sync.RWMutex
	participants map[string]Participant
	connections  map[string]Connection
}

func newRoom(name string) *Room {
	return &Room{
		name:         name,
		participants: make(map[string]Participant),
		connections:  make(map[string]Connection),
	}
}

// Name returns the room's name.
func (r *Room) Name() string { return r.name }

// Snapshot returns a defensive copy of the room's current participant set,
// suitable for inclusion in a room-info frame.
func (r *Room) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// ConnectionFor looks up the live connection for a public key within this
// room.
func (r *Room) ConnectionFor(publicKey string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[publicKey]
	return conn, ok
}

// Broadcast sends frame to every connection in the room except the one
// belonging to excludePublicKey (pass "" to exclude none). Connections whose
// Send reports false (buffer full, gone) are silently skipped; the room
// does not track delivery.
func (r *Room) Broadcast(excludePublicKey string, frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, conn := range r.connections {
		if key == excludePublicKey {
			continue
		}
		conn.Send(frame)
	}
}

// Registry maps room names to Rooms. Mutations are serialized per room;
// the top-level map itself is guarded by its own mutex only for the
// create/delete path.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Room returns the named room if it currently has members.
func (r *Registry) Room(name string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

// Join ensures roomName exists and registers p under its public key,
// last-writer-wins if the key was already present (e.g. a stale connection
// reconnecting under the same identity). Returns the room.
func (r *Registry) Join(roomName string, p Participant, conn Connection) *Room {
	r.mu.Lock()
	room, ok := r.rooms[roomName]
	if !ok {
		room = newRoom(roomName)
		r.rooms[roomName] = room
		metrics.ActiveRooms.Inc()
	}
	r.mu.Unlock()

	room.mu.Lock()
	room.participants[p.PublicKey] = p
	room.connections[p.PublicKey] = conn
	count := len(room.participants)
	room.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(roomName).Set(float64(count))
	return room
}

// Leave removes publicKey from roomName. If the room becomes empty it is
// removed from the registry (the Store's history is untouched). Returns
// true if the room was removed as a result.
func (r *Registry) Leave(roomName, publicKey string) bool {
	r.mu.Lock()
	room, ok := r.rooms[roomName]
	if !ok {
		r.mu.Unlock()
		return false
	}

	room.mu.Lock()
	delete(room.participants, publicKey)
	delete(room.connections, publicKey)
	empty := len(room.participants) == 0
	count := len(room.participants)
	room.mu.Unlock()

	if empty {
		delete(r.rooms, roomName)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(roomName)
	} else {
		metrics.RoomParticipants.WithLabelValues(roomName).Set(float64(count))
	}
	r.mu.Unlock()

	return empty
}
