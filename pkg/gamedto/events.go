// Package gamedto defines the JSON messages exchanged over the game socket
// and the REST surface. Field names are part of the client contract and must
// not change.
package gamedto

import (
	"encoding/json"

	"github.com/chessmaster/gamesync/internal/domain"
)

// Client to server event names.
const (
	EventJoinGame  = "join-game"
	EventGameMove  = "game-move"
	EventLeaveGame = "leave-game"
)

// Server to client event names.
const (
	EventGameState    = "game-state"
	EventMoveMade     = "move-made"
	EventGameOver     = "game-over"
	EventGameError    = "game-error"
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
)

// Envelope frames every socket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a framed message.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw}, nil
}

type JoinGame struct {
	GameID string `json:"gameId"`
}

type GameMove struct {
	GameID    string `json:"gameId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type LeaveGame struct {
	GameID string `json:"gameId"`
}

// GameState is the full snapshot sent to a subscriber on join.
type GameState struct {
	GameID      string        `json:"gameId"`
	BoardState  string        `json:"boardState"`
	MoveLog     []domain.Move `json:"moveLog"`
	Turn        string        `json:"turn"`
	IsCheck     bool          `json:"isCheck"`
	IsCheckmate bool          `json:"isCheckmate"`
	IsStalemate bool          `json:"isStalemate"`
	IsDraw      bool          `json:"isDraw"`
	IsGameOver  bool          `json:"isGameOver"`
}

// MoveMade is the incremental update broadcast after each accepted move.
type MoveMade struct {
	GameID      string      `json:"gameId"`
	Move        domain.Move `json:"move"`
	BoardState  string      `json:"boardState"`
	Turn        string      `json:"turn"`
	IsCheck     bool        `json:"isCheck"`
	IsCheckmate bool        `json:"isCheckmate"`
	IsStalemate bool        `json:"isStalemate"`
	IsDraw      bool        `json:"isDraw"`
	IsGameOver  bool        `json:"isGameOver"`
}

// GameOver announces the result once. Winner is null for draws.
type GameOver struct {
	GameID string  `json:"gameId"`
	Winner *string `json:"winner"`
	Reason string  `json:"reason"`
}

type GameError struct {
	Message string `json:"message"`
}

type PlayerJoined struct {
	Identity string `json:"identity"`
}

type PlayerLeft struct {
	Identity string `json:"identity"`
}

// GameView is the REST representation of a game with live metadata.
type GameView struct {
	Game    *domain.Game `json:"game"`
	Viewers int64        `json:"viewers"`
}
