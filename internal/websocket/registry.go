package websocket

import "sync"

// Registry maps room identifiers to the set of clients currently joined
// to them. Join, Leave and MembersOf may be called concurrently from
// independent connection lifecycles; every mutation is scoped to a single
// room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Join adds a client to a room's member set, creating the set if absent.
// Idempotent: joining twice leaves the set unchanged. Returns true if the
// client was newly added.
func (r *Registry) Join(roomID string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	if _, ok := members[client]; ok {
		return false
	}
	members[client] = struct{}{}
	return true
}

// Leave removes a client from a room's member set, pruning the room entry
// when it empties. Idempotent: leaving a room the client is not in is a
// no-op. Returns true if the client was actually removed.
func (r *Registry) Leave(roomID string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[client]; !ok {
		return false
	}
	delete(members, client)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// MembersOf returns a snapshot of the clients joined to a room. The
// snapshot is stable for the caller even if membership changes afterwards.
func (r *Registry) MembersOf(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	snapshot := make([]*Client, 0, len(members))
	for client := range members {
		snapshot = append(snapshot, client)
	}
	return snapshot
}

// Drain removes and returns every registered client. Used at shutdown.
func (r *Registry) Drain() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var clients []*Client
	for roomID, members := range r.rooms {
		for client := range members {
			clients = append(clients, client)
		}
		delete(r.rooms, roomID)
	}
	return clients
}
