package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chessmaster/gamesync/internal/config"
	"github.com/chessmaster/gamesync/internal/domain"
	"github.com/chessmaster/gamesync/internal/engine"
	"github.com/chessmaster/gamesync/internal/obslog"
)

const persistTimeout = 5 * time.Second

// MoveRequest is one attempted move by an identity.
type MoveRequest struct {
	Identity  string
	From      string
	To        string
	Promotion string
}

// MoveResult describes an accepted move. PersistFailed is set under the
// memory-first consistency mode when the move stands in memory but its
// durable save failed; the caller reports that to the mover only.
type MoveResult struct {
	Move          domain.Move
	Flags         engine.Flags
	MoveIndex     int
	BoardState    string
	PersistFailed bool
}

// Submit validates, applies and persists one move against the session.
// Moves for the same session are processed strictly one at a time, in lock
// acquisition order; each waiter sees the state left by its predecessor.
// deliver, when non-nil, runs for an accepted move while the session lock is
// still held, so deliveries happen in application order; it must not block
// and must not touch the session.
func (r *Registry) Submit(ctx context.Context, sess *Session, req MoveRequest, deliver func(*MoveResult)) (*MoveResult, error) {
	if sess.pending.Add(1) > r.queueCap {
		sess.pending.Add(-1)
		return nil, ErrSessionBusy
	}
	sess.mu.Lock()
	defer func() {
		sess.mu.Unlock()
		sess.pending.Add(-1)
	}()

	if sess.phase != PhaseActive {
		return nil, ErrGameFinished
	}

	slot := sess.game.SlotOf(req.Identity)
	if slot == "" {
		return nil, ErrNotAuthorized
	}
	if slot != sess.state.Turn() {
		return nil, ErrNotYourTurn
	}

	var rollback *engine.State
	if r.mode == config.PersistFirst {
		rollback = sess.state.Clone()
	}

	mv, err := sess.state.Apply(req.From, req.To, req.Promotion)
	if err != nil {
		return nil, err
	}
	sess.game.Moves = append(sess.game.Moves, mv)
	moveIndex := len(sess.game.Moves) - 1

	flags := sess.state.Flags()
	if flags.IsGameOver {
		sess.game.Finished = true
	}

	res := &MoveResult{
		Move:       mv,
		Flags:      flags,
		MoveIndex:  moveIndex,
		BoardState: sess.state.FEN(),
	}

	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	saveErr := r.store.SaveMoveLog(saveCtx, sess.GameID, sess.game.Moves, sess.game.Finished)
	cancel()
	if saveErr != nil {
		if r.mode == config.PersistFirst {
			sess.state = rollback
			sess.game.Moves = sess.game.Moves[:moveIndex]
			sess.game.Finished = false
			obslog.L().Error("move_rollback",
				zap.String("game_id", sess.GameID),
				zap.Int("move_index", moveIndex),
				zap.Error(saveErr))
			return nil, errors.Join(ErrPersistence, saveErr)
		}
		// Memory-first: the move stands and is broadcast; the divergence is
		// logged for reconciliation and reported to the mover.
		res.PersistFailed = true
		obslog.L().Error("move_persist_error",
			zap.String("game_id", sess.GameID),
			zap.Int("move_index", moveIndex),
			zap.Error(saveErr))
	}

	if flags.IsGameOver {
		r.scheduleEviction(sess)
		sess.phase = PhaseGrace
		obslog.L().Info("game_finish",
			zap.String("game_id", sess.GameID),
			zap.String("reason", flags.Reason),
			zap.String("winner", string(flags.Winner)))
	}
	sess.lastActive = r.clock.Now()
	if deliver != nil {
		deliver(res)
	}
	return res, nil
}
