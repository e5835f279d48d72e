package gamestore

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chessmaster/gamesync/internal/domain"
)

// MemStore is an in-memory Store used in development and tests.
type MemStore struct {
	mu    sync.RWMutex
	games map[string]*domain.Game

	// SaveErr, when set, is returned by SaveMoveLog without writing.
	SaveErr error
}

func NewMemStore() *MemStore {
	return &MemStore{games: make(map[string]*domain.Game)}
}

func (m *MemStore) CreateGame(ctx context.Context, identity string, color ColorChoice) (*domain.Game, error) {
	identity = strings.TrimSpace(identity)
	g := &domain.Game{
		ID:        uuid.NewString(),
		Moves:     []domain.Move{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	switch color {
	case ChoiceWhite:
		g.WhitePlayerID = identity
	case ChoiceBlack:
		g.BlackPlayerID = identity
	default:
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
			g.BlackPlayerID = identity
		} else {
			g.WhitePlayerID = identity
		}
	}

	m.mu.Lock()
	m.games[g.ID] = g
	m.mu.Unlock()
	return copyGame(g), nil
}

func (m *MemStore) FetchGame(ctx context.Context, id string) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGame(g), nil
}

func (m *MemStore) ClaimSlot(ctx context.Context, id, identity string) (*domain.Game, error) {
	identity = strings.TrimSpace(identity)
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch {
	case g.SlotOf(identity) != "":
	case g.WhitePlayerID == "":
		g.WhitePlayerID = identity
		g.UpdatedAt = time.Now()
	case g.BlackPlayerID == "":
		g.BlackPlayerID = identity
		g.UpdatedAt = time.Now()
	default:
		return nil, ErrGameFull
	}
	return copyGame(g), nil
}

func (m *MemStore) SaveMoveLog(ctx context.Context, id string, moves []domain.Move, finished bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	g, ok := m.games[id]
	if !ok {
		return ErrNotFound
	}
	g.Moves = append([]domain.Move(nil), moves...)
	g.Finished = finished
	g.UpdatedAt = time.Now()
	return nil
}

// Seed installs a prepared record, overwriting any existing one. Test helper.
func (m *MemStore) Seed(g *domain.Game) {
	m.mu.Lock()
	m.games[g.ID] = copyGame(g)
	m.mu.Unlock()
}

func copyGame(g *domain.Game) *domain.Game {
	out := *g
	out.Moves = append([]domain.Move(nil), g.Moves...)
	return &out
}
