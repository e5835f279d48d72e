package session

import "errors"

var (
	// ErrNotAuthorized rejects an operation from an identity that holds
	// neither player slot.
	ErrNotAuthorized = errors.New("not authorized for this game")

	// ErrNotYourTurn rejects a move from the player whose opponent is to move.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrGameFinished rejects moves after the game reached a terminal state.
	ErrGameFinished = errors.New("game is already finished")

	// ErrSessionBusy is the transient rejection when too many moves for one
	// session are waiting to be processed.
	ErrSessionBusy = errors.New("too many pending moves")

	// ErrPersistence marks a move whose durable save failed.
	ErrPersistence = errors.New("move persistence failed")

	// ErrCorruptHistory marks a stored move log that no longer replays.
	ErrCorruptHistory = errors.New("corrupt move history")
)
