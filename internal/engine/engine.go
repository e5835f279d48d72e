// Package engine adapts the chess rules library behind the narrow surface
// the session layer needs: initial state, ordered replay of a persisted
// move log, and single-move application with legality checking.
package engine

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/chessmaster/gamesync/internal/domain"
)

var ErrIllegalMove = errors.New("illegal move")

// Flags are the derived indicators broadcast with every state change.
type Flags struct {
	Turn        domain.Color
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
	IsGameOver  bool
	Winner      domain.Color // empty for draws and ongoing games
	Reason      string       // checkmate, stalemate or draw when over
}

// State is the authoritative board state of one session. It is not safe for
// concurrent use; callers serialize access per session.
type State struct {
	game *nchess.Game
}

// NewState returns the standard initial position.
func NewState() *State {
	return &State{game: nchess.NewGame()}
}

// Replay rebuilds a state by applying a persisted move log in order.
// A rejected step means the stored history is corrupt; the failing index is
// carried in the error.
func Replay(moves []domain.Move) (*State, error) {
	s := NewState()
	for i, m := range moves {
		if _, err := s.Apply(m.From, m.To, m.Promotion); err != nil {
			return nil, fmt.Errorf("replay move %d (%s%s): %w", i, m.From, m.To, err)
		}
	}
	return s, nil
}

// Apply validates and applies one move. The promotion piece defaults to a
// queen when a promotion move omits it. Returns ErrIllegalMove without
// mutating the state when the rules library rejects the move.
func (s *State) Apply(from, to, promotion string) (domain.Move, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to))
	if m, err := s.apply(uci); err == nil {
		return m, nil
	}
	promo := strings.ToLower(strings.TrimSpace(promotion))
	if promo == "" {
		promo = "q"
	}
	return s.apply(uci + promo)
}

func (s *State) apply(uci string) (domain.Move, error) {
	pos := s.game.Position()
	notation := nchess.UCINotation{}
	mv, err := notation.Decode(pos, uci)
	if err != nil {
		return domain.Move{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	board := pos.Board()
	moved := board.Piece(mv.S1())
	captured := board.Piece(mv.S2())
	if err := s.game.Move(mv, nil); err != nil {
		return domain.Move{}, ErrIllegalMove
	}

	out := domain.Move{
		From:  mv.S1().String(),
		To:    mv.S2().String(),
		Piece: pieceLetter(moved.Type()),
		SAN:   san,
	}
	if mv.HasTag(nchess.EnPassant) {
		out.Captured = pieceLetter(nchess.Pawn)
	} else if captured != nchess.NoPiece {
		out.Captured = pieceLetter(captured.Type())
	}
	if mv.Promo() != nchess.NoPieceType {
		out.Promotion = pieceLetter(mv.Promo())
	}
	out.Flags = moveFlags(mv, moved, out.Captured != "")
	return out, nil
}

// Turn reports the side to move.
func (s *State) Turn() domain.Color {
	return colorFrom(s.game.Position().Turn())
}

// FEN serializes the current position.
func (s *State) FEN() string {
	return s.game.FEN()
}

// MoveCount is the number of applied half-moves.
func (s *State) MoveCount() int {
	return len(s.game.Moves())
}

// Clone returns an independent copy, used to roll back a move whose
// persistence failed under the persist-first consistency mode.
func (s *State) Clone() *State {
	return &State{game: s.game.Clone()}
}

// Flags derives the broadcast indicators from the current state.
func (s *State) Flags() Flags {
	f := Flags{Turn: s.Turn()}
	method := s.game.Method()
	f.IsCheckmate = method == nchess.Checkmate
	f.IsStalemate = method == nchess.Stalemate
	switch s.game.Outcome() {
	case nchess.WhiteWon:
		f.IsGameOver = true
		f.Winner = domain.White
	case nchess.BlackWon:
		f.IsGameOver = true
		f.Winner = domain.Black
	case nchess.Draw:
		f.IsGameOver = true
		f.IsDraw = true
	}
	if moves := s.game.Moves(); len(moves) > 0 {
		f.IsCheck = moves[len(moves)-1].HasTag(nchess.Check)
	}
	switch {
	case f.IsCheckmate:
		f.Reason = "checkmate"
	case f.IsStalemate:
		f.Reason = "stalemate"
	case f.IsDraw:
		f.Reason = "draw"
	}
	return f
}

func moveFlags(mv *nchess.Move, moved nchess.Piece, captured bool) string {
	var b strings.Builder
	switch {
	case mv.HasTag(nchess.KingSideCastle):
		b.WriteByte('k')
	case mv.HasTag(nchess.QueenSideCastle):
		b.WriteByte('q')
	}
	if mv.HasTag(nchess.EnPassant) {
		b.WriteByte('e')
	} else if captured {
		b.WriteByte('c')
	}
	if moved.Type() == nchess.Pawn && rankDistance(mv) == 2 {
		b.WriteByte('b')
	}
	if mv.Promo() != nchess.NoPieceType {
		b.WriteByte('p')
	}
	if b.Len() == 0 {
		return "n"
	}
	return b.String()
}

func rankDistance(mv *nchess.Move) int {
	d := int(mv.S2().Rank()) - int(mv.S1().Rank())
	if d < 0 {
		d = -d
	}
	return d
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Pawn:
		return "p"
	case nchess.Knight:
		return "n"
	case nchess.Bishop:
		return "b"
	case nchess.Rook:
		return "r"
	case nchess.Queen:
		return "q"
	case nchess.King:
		return "k"
	default:
		return ""
	}
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}
