package domain

import (
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Move is one applied half-move as stored in the game's move log and sent
// over the wire. Piece letters and flag characters follow the client's
// conventions: pieces are p/n/b/r/q/k, flags are a combination of
// n (normal), b (two-square pawn push), e (en passant), c (capture),
// p (promotion), k (kingside castle), q (queenside castle).
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Piece     string `json:"piece"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Flags     string `json:"flags"`
	SAN       string `json:"san"`
}

// Game is the durable record of a match. The two player slots start empty
// and are each claimed at most once; Moves only grows, in play order.
type Game struct {
	ID            string    `json:"id"`
	WhitePlayerID string    `json:"whitePlayerId,omitempty"`
	BlackPlayerID string    `json:"blackPlayerId,omitempty"`
	Moves         []Move    `json:"moves"`
	Finished      bool      `json:"finished"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SlotOf returns the color owned by identity, or "" when it owns neither.
func (g *Game) SlotOf(identity string) Color {
	if identity == "" {
		return ""
	}
	if g.WhitePlayerID == identity {
		return White
	}
	if g.BlackPlayerID == identity {
		return Black
	}
	return ""
}
