// Package gamestore is the durable store for game records: two claimable
// player slots, the ordered move log, and the finished flag.
package gamestore

import (
	"context"
	"errors"

	"github.com/chessmaster/gamesync/internal/domain"
)

var (
	ErrNotFound = errors.New("game not found")
	ErrGameFull = errors.New("game already has two players")
)

// ColorChoice selects the creator's side when starting a game.
type ColorChoice string

const (
	ChoiceWhite  ColorChoice = "white"
	ChoiceBlack  ColorChoice = "black"
	ChoiceRandom ColorChoice = "random"
)

type Store interface {
	// CreateGame starts a new game with the creator occupying the chosen
	// color slot (or a random one) and the other slot empty.
	CreateGame(ctx context.Context, identity string, color ColorChoice) (*domain.Game, error)

	// FetchGame returns the record for id, or ErrNotFound.
	FetchGame(ctx context.Context, id string) (*domain.Game, error)

	// ClaimSlot assigns the first empty color slot to identity. Claiming is
	// idempotent for an identity that already holds a slot; when both slots
	// are held by others it returns ErrGameFull.
	ClaimSlot(ctx context.Context, id, identity string) (*domain.Game, error)

	// SaveMoveLog replaces the stored move log and finished flag. The full
	// log is written each time, so a retried or duplicate save for the same
	// game and move index is harmless.
	SaveMoveLog(ctx context.Context, id string, moves []domain.Move, finished bool) error
}
