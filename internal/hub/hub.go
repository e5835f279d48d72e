// Package hub fans server events out to the connections subscribed to each
// game. It knows nothing about chess; it moves labeled payloads to rooms.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/chessmaster/gamesync/internal/obslog"
)

// Conn is one subscriber. Send must not block; implementations queue the
// event and drop the connection when the queue overflows.
type Conn interface {
	Identity() string
	Send(eventType string, data any)
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{}
}

func New() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

// Subscribe adds c to the game's room. Subscribing twice is a no-op.
func (h *Hub) Subscribe(gameID string, c Conn) {
	h.mu.Lock()
	room, ok := h.rooms[gameID]
	if !ok {
		room = make(map[Conn]struct{})
		h.rooms[gameID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes c and reports whether it was subscribed.
func (h *Hub) Unsubscribe(gameID string, c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[gameID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, gameID)
	}
	return true
}

// Publish sends the event to every subscriber of the game.
func (h *Hub) Publish(gameID, eventType string, data any) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[gameID]))
	for c := range h.rooms[gameID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Send(eventType, data)
	}
}

// PublishOthers sends the event to every subscriber except one, used for
// join and leave notifications about that connection itself.
func (h *Hub) PublishOthers(gameID string, except Conn, eventType string, data any) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[gameID]))
	for c := range h.rooms[gameID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Send(eventType, data)
	}
}

// Drop removes the whole room when its session is evicted.
func (h *Hub) Drop(gameID string) {
	h.mu.Lock()
	n := len(h.rooms[gameID])
	delete(h.rooms, gameID)
	h.mu.Unlock()
	if n > 0 {
		obslog.L().Info("room_drop", zap.String("game_id", gameID), zap.Int("subscribers", n))
	}
}

// Subscribers reports the room size.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}
