package app

import (
	"sync"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/pkg/metrics"
)

// Subscriber a live connection that can receive room messages.
// Deliver must not block; it reports false when the message could not be queued.
type Subscriber interface {
	ID() string
	Deliver(msg *domain.Message) bool
}

// Broadcaster publish a stored message to its room.
// The result counts the local connections the message was handed to.
type Broadcaster interface {
	Publish(room string, msg *domain.Message) int
}

type membership struct {
	room     string
	username string
	sub      Subscriber
}

// Hub room registry plus broadcast. Every connection is in at most one room.
type Hub struct {
	mu      sync.RWMutex
	members map[string]membership            // connection id -> current membership
	rooms   map[string]map[string]Subscriber // room -> connection id -> subscriber
}

// NewHub create an empty Hub
func NewHub() *Hub {
	return &Hub{
		members: make(map[string]membership),
		rooms:   make(map[string]map[string]Subscriber),
	}
}

// JoinRoom move sub into room, leaving its previous room first.
// Joining the room it is already in only refreshes the username.
func (h *Hub) JoinRoom(sub Subscriber, room, username string) {
	id := sub.ID()

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.members[id]; ok && prev.room != room {
		h.removeLocked(id, prev.room)
	}

	set, ok := h.rooms[room]
	if !ok {
		set = make(map[string]Subscriber)
		h.rooms[room] = set
	}
	set[id] = sub
	h.members[id] = membership{room: room, username: username, sub: sub}
}

// LeaveAll drop connID from whatever room it is in, no-op when it has none
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, ok := h.members[connID]
	if !ok {
		return
	}
	h.removeLocked(connID, prev.room)
	delete(h.members, connID)
}

func (h *Hub) removeLocked(connID, room string) {
	set, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// Publish deliver msg to every connection in room at the time of the call
func (h *Hub) Publish(room string, msg *domain.Message) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.rooms[room]))
	for _, sub := range h.rooms[room] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.Deliver(msg) {
			delivered++
		}
	}
	metrics.MessagesPublished.Inc()
	metrics.Deliveries.Add(float64(delivered))
	return delivered
}

// RoomOf current room and username of connID
func (h *Hub) RoomOf(connID string) (room, username string, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m, ok := h.members[connID]
	return m.room, m.username, ok
}

// MemberCount number of connections in room
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
