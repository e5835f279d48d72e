package gamestore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/chessmaster/gamesync/internal/domain"
)

// PostgresStore persists games in a single table with the move log as jsonb.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) CreateGame(ctx context.Context, identity string, color ColorChoice) (*domain.Game, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	var white, black sql.NullString
	switch color {
	case ChoiceWhite:
		white = sql.NullString{String: identity, Valid: true}
	case ChoiceBlack:
		black = sql.NullString{String: identity, Valid: true}
	default:
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
			black = sql.NullString{String: identity, Valid: true}
		} else {
			white = sql.NullString{String: identity, Valid: true}
		}
	}

	g := &domain.Game{
		ID:        uuid.NewString(),
		Moves:     []domain.Move{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	g.WhitePlayerID = white.String
	g.BlackPlayerID = black.String

	const q = `INSERT INTO games (id, white_player_id, black_player_id, moves, finished, created_at, updated_at)
		VALUES ($1, $2, $3, '[]'::jsonb, FALSE, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, g.ID, white, black, g.CreatedAt, g.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) FetchGame(ctx context.Context, id string) (*domain.Game, error) {
	const q = `SELECT id, white_player_id, black_player_id, moves, finished, created_at, updated_at
		FROM games WHERE id = $1`
	return scanGame(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ClaimSlot(ctx context.Context, id, identity string) (*domain.Game, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const sel = `SELECT id, white_player_id, black_player_id, moves, finished, created_at, updated_at
		FROM games WHERE id = $1 FOR UPDATE`
	g, err := scanGame(tx.QueryRowContext(ctx, sel, id))
	if err != nil {
		return nil, err
	}

	switch {
	case g.SlotOf(identity) != "":
		// already seated, nothing to write
		return g, tx.Commit()
	case g.WhitePlayerID == "":
		g.WhitePlayerID = identity
	case g.BlackPlayerID == "":
		g.BlackPlayerID = identity
	default:
		return nil, ErrGameFull
	}

	const upd = `UPDATE games SET white_player_id = $2, black_player_id = $3, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, upd, g.ID, nullable(g.WhitePlayerID), nullable(g.BlackPlayerID)); err != nil {
		return nil, fmt.Errorf("claim slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	g.UpdatedAt = time.Now()
	return g, nil
}

func (s *PostgresStore) SaveMoveLog(ctx context.Context, id string, moves []domain.Move, finished bool) error {
	raw, err := json.Marshal(moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	const q = `UPDATE games SET moves = $2::jsonb, finished = $3, updated_at = NOW() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, raw, finished)
	if err != nil {
		return fmt.Errorf("save move log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g            domain.Game
		white, black sql.NullString
		movesJSON    []byte
	)
	err := row.Scan(&g.ID, &white, &black, &movesJSON, &g.Finished, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan game: %w", err)
	}
	g.WhitePlayerID = white.String
	g.BlackPlayerID = black.String
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &g.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal moves: %w", err)
		}
	}
	if g.Moves == nil {
		g.Moves = []domain.Move{}
	}
	return &g, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
