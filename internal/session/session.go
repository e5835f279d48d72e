// Package session keeps one live, authoritative state per active game and
// serializes every mutation of it. Sessions are hydrated on demand from the
// durable store and evicted after a grace period once the game ends.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chessmaster/gamesync/internal/domain"
	"github.com/chessmaster/gamesync/internal/engine"
	"github.com/chessmaster/gamesync/pkg/gamedto"
)

type Phase int32

const (
	PhaseActive Phase = iota
	// PhaseGrace means the game reached a terminal state; the session stays
	// resident so late subscribers still get the final position, then is
	// evicted when the grace timer fires.
	PhaseGrace
	PhaseEvicted
)

// Session holds the live state of one game. All fields behind mu; pending is
// the count of moves waiting on the lock, bounded by the registry's queue cap.
type Session struct {
	GameID string

	mu         sync.Mutex
	game       *domain.Game
	state      *engine.State
	phase      Phase
	evictTimer Timer
	lastActive time.Time

	pending atomic.Int32
}

// Snapshot builds the full-state event under the session lock, so a reader
// never observes a half-applied move.
func (s *Session) Snapshot() gamedto.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() gamedto.GameState {
	f := s.state.Flags()
	moves := make([]domain.Move, len(s.game.Moves))
	copy(moves, s.game.Moves)
	return gamedto.GameState{
		GameID:      s.GameID,
		BoardState:  s.state.FEN(),
		MoveLog:     moves,
		Turn:        string(f.Turn),
		IsCheck:     f.IsCheck,
		IsCheckmate: f.IsCheckmate,
		IsStalemate: f.IsStalemate,
		IsDraw:      f.IsDraw,
		IsGameOver:  f.IsGameOver,
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SlotOf reports the color identity holds, or "" for spectators.
func (s *Session) SlotOf(identity string) domain.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.SlotOf(identity)
}

// HasOpenSlot reports whether either player seat is still unclaimed.
func (s *Session) HasOpenSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.WhitePlayerID == "" || s.game.BlackPlayerID == ""
}

// AdoptSlots refreshes the seat assignments from a store record after a
// claim. The in-memory move log stays authoritative and is not touched.
func (s *Session) AdoptSlots(g *domain.Game) {
	if g == nil {
		return
	}
	s.mu.Lock()
	if s.game.WhitePlayerID == "" {
		s.game.WhitePlayerID = g.WhitePlayerID
	}
	if s.game.BlackPlayerID == "" {
		s.game.BlackPlayerID = g.BlackPlayerID
	}
	s.mu.Unlock()
}

// MoveCount reports the applied half-move count.
func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.game.Moves)
}
