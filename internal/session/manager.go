package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chessmaster/gamesync/internal/engine"
	"github.com/chessmaster/gamesync/internal/gamestore"
	"github.com/chessmaster/gamesync/internal/hub"
	"github.com/chessmaster/gamesync/internal/msgcat"
	"github.com/chessmaster/gamesync/internal/obslog"
	"github.com/chessmaster/gamesync/internal/presence"
	"github.com/chessmaster/gamesync/pkg/gamedto"
)

// Manager ties the registry to the broadcast hub and presence tracking. It
// is the entry point the socket layer drives for joins, moves and leaves.
type Manager struct {
	reg   *Registry
	hub   *hub.Hub
	store gamestore.Store
	pres  *presence.Store // optional
	cat   *msgcat.Catalog
}

func NewManager(reg *Registry, h *hub.Hub, store gamestore.Store, pres *presence.Store, cat *msgcat.Catalog) *Manager {
	m := &Manager{reg: reg, hub: h, store: store, pres: pres, cat: cat}
	reg.OnEvict(m.evicted)
	return m
}

// Join subscribes the connection to a game and replies with the full state.
// An unseated identity claims an open player slot; when both slots are taken
// it joins as a spectator.
func (m *Manager) Join(ctx context.Context, gameID string, c hub.Conn) error {
	sess, err := m.reg.Resolve(ctx, gameID)
	if err != nil {
		return err
	}

	identity := c.Identity()
	if identity != "" && sess.SlotOf(identity) == "" && sess.HasOpenSlot() {
		g, err := m.store.ClaimSlot(ctx, gameID, identity)
		switch {
		case err == nil:
			sess.AdoptSlots(g)
		case errors.Is(err, gamestore.ErrGameFull):
			// lost the race for the last seat, spectate instead
		default:
			obslog.L().Warn("slot_claim_failed",
				zap.String("game_id", gameID),
				zap.String("identity", identity),
				zap.Error(err))
		}
	}

	m.hub.Subscribe(gameID, c)
	c.Send(gamedto.EventGameState, sess.Snapshot())
	m.hub.PublishOthers(gameID, c, gamedto.EventPlayerJoined, gamedto.PlayerJoined{Identity: identity})

	if m.pres != nil {
		if err := m.pres.AddViewer(ctx, gameID, identity); err != nil {
			obslog.L().Warn("presence_add_failed", zap.String("game_id", gameID), zap.Error(err))
		}
	}
	return nil
}

// Move submits one move and broadcasts the outcome to the game's room.
func (m *Manager) Move(ctx context.Context, gameID string, c hub.Conn, req gamedto.GameMove) error {
	sess, err := m.reg.Resolve(ctx, gameID)
	if err != nil {
		return err
	}
	// Broadcasts happen inside the delivery callback, under the session lock,
	// so subscribers see move-made events in application order.
	res, err := m.reg.Submit(ctx, sess, MoveRequest{
		Identity:  c.Identity(),
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	}, func(res *MoveResult) {
		m.hub.Publish(gameID, gamedto.EventMoveMade, gamedto.MoveMade{
			GameID:      gameID,
			Move:        res.Move,
			BoardState:  res.BoardState,
			Turn:        string(res.Flags.Turn),
			IsCheck:     res.Flags.IsCheck,
			IsCheckmate: res.Flags.IsCheckmate,
			IsStalemate: res.Flags.IsStalemate,
			IsDraw:      res.Flags.IsDraw,
			IsGameOver:  res.Flags.IsGameOver,
		})
		if res.Flags.IsGameOver {
			var winner *string
			if res.Flags.Winner != "" {
				w := string(res.Flags.Winner)
				winner = &w
			}
			m.hub.Publish(gameID, gamedto.EventGameOver, gamedto.GameOver{
				GameID: gameID,
				Winner: winner,
				Reason: res.Flags.Reason,
			})
		}
	})
	if err != nil {
		return err
	}
	if res.PersistFailed {
		c.Send(gamedto.EventGameError, gamedto.GameError{Message: m.ErrorMessage(ErrPersistence)})
	}
	return nil
}

// Leave unsubscribes the connection and notifies the rest of the room.
func (m *Manager) Leave(ctx context.Context, gameID string, c hub.Conn) {
	if m.hub.Unsubscribe(gameID, c) {
		m.hub.Publish(gameID, gamedto.EventPlayerLeft, gamedto.PlayerLeft{Identity: c.Identity()})
	}
	if m.pres != nil {
		if err := m.pres.RemoveViewer(ctx, gameID, c.Identity()); err != nil {
			obslog.L().Warn("presence_remove_failed", zap.String("game_id", gameID), zap.Error(err))
		}
	}
}

func (m *Manager) evicted(gameID string) {
	m.hub.Drop(gameID)
	if m.pres != nil {
		if err := m.pres.Clear(context.Background(), gameID); err != nil {
			obslog.L().Warn("presence_clear_failed", zap.String("game_id", gameID), zap.Error(err))
		}
	}
}

// ErrorMessage renders the client-facing text for a failed operation.
func (m *Manager) ErrorMessage(err error) string {
	key := "game.error.internal"
	switch {
	case errors.Is(err, gamestore.ErrNotFound):
		key = "game.error.not_found"
	case errors.Is(err, ErrNotAuthorized):
		key = "game.error.not_authorized"
	case errors.Is(err, ErrNotYourTurn):
		key = "game.error.not_your_turn"
	case errors.Is(err, engine.ErrIllegalMove):
		key = "game.error.illegal_move"
	case errors.Is(err, ErrGameFinished):
		key = "game.error.finished"
	case errors.Is(err, ErrSessionBusy):
		key = "game.error.busy"
	case errors.Is(err, ErrPersistence):
		key = "game.error.persistence"
	}
	msg, rerr := m.cat.Render(key, nil)
	if rerr != nil {
		obslog.L().Error("msg_render_failed", zap.String("key", key), zap.Error(rerr))
		return "Failed to process request"
	}
	return msg
}
