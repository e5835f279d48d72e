package engine

import (
	"errors"
	"testing"

	"github.com/chessmaster/gamesync/internal/domain"
)

func mustApply(t *testing.T, s *State, from, to string) domain.Move {
	t.Helper()
	m, err := s.Apply(from, to, "")
	if err != nil {
		t.Fatalf("Apply(%s,%s): %v", from, to, err)
	}
	return m
}

func TestApplyBasicMove(t *testing.T) {
	s := NewState()
	if s.Turn() != domain.White {
		t.Fatalf("initial turn = %s, want white", s.Turn())
	}
	m := mustApply(t, s, "e2", "e4")
	if m.Piece != "p" || m.SAN != "e4" || m.Flags != "b" {
		t.Fatalf("unexpected move record: %+v", m)
	}
	if s.Turn() != domain.Black {
		t.Fatalf("turn after e4 = %s, want black", s.Turn())
	}
	if s.MoveCount() != 1 {
		t.Fatalf("move count = %d, want 1", s.MoveCount())
	}
}

func TestApplyIllegalMoveLeavesStateUntouched(t *testing.T) {
	s := NewState()
	fen := s.FEN()
	if _, err := s.Apply("e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if s.FEN() != fen || s.MoveCount() != 0 {
		t.Fatalf("state mutated by rejected move")
	}
}

func TestApplyCapture(t *testing.T) {
	s := NewState()
	mustApply(t, s, "e2", "e4")
	mustApply(t, s, "d7", "d5")
	m := mustApply(t, s, "e4", "d5")
	if m.Captured != "p" || m.Flags != "c" {
		t.Fatalf("capture record: %+v", m)
	}
}

func TestApplyEnPassant(t *testing.T) {
	s := NewState()
	mustApply(t, s, "e2", "e4")
	mustApply(t, s, "a7", "a6")
	mustApply(t, s, "e4", "e5")
	mustApply(t, s, "d7", "d5")
	m := mustApply(t, s, "e5", "d6")
	if m.Captured != "p" || m.Flags != "e" {
		t.Fatalf("en passant record: %+v", m)
	}
}

func TestApplyPromotionDefaultsToQueen(t *testing.T) {
	s := NewState()
	for _, mv := range [][2]string{
		{"a2", "a4"}, {"b7", "b5"},
		{"a4", "b5"}, {"a7", "a6"},
		{"b5", "a6"}, {"c8", "b7"},
		{"a6", "b7"}, {"e7", "e6"},
	} {
		mustApply(t, s, mv[0], mv[1])
	}
	m := mustApply(t, s, "b7", "a8")
	if m.Promotion != "q" {
		t.Fatalf("promotion = %q, want q", m.Promotion)
	}
	if m.Captured != "r" || m.Flags != "cp" {
		t.Fatalf("promotion capture record: %+v", m)
	}
}

func TestScholarsMateFlags(t *testing.T) {
	s := NewState()
	mustApply(t, s, "e2", "e4")
	mustApply(t, s, "e7", "e5")
	mustApply(t, s, "f1", "c4")
	mustApply(t, s, "b8", "c6")
	mustApply(t, s, "d1", "h5")
	mustApply(t, s, "g8", "f6")
	m := mustApply(t, s, "h5", "f7")
	if m.Captured != "p" {
		t.Fatalf("mating move record: %+v", m)
	}
	f := s.Flags()
	if !f.IsGameOver || !f.IsCheckmate || !f.IsCheck {
		t.Fatalf("terminal flags: %+v", f)
	}
	if f.Winner != domain.White || f.Reason != "checkmate" {
		t.Fatalf("winner=%s reason=%s", f.Winner, f.Reason)
	}
	if _, err := s.Apply("e8", "f7", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("move after checkmate should be illegal, got %v", err)
	}
}

func TestReplayReproducesState(t *testing.T) {
	s := NewState()
	var log []domain.Move
	for _, mv := range [][2]string{{"e2", "e4"}, {"e7", "e5"}, {"g1", "f3"}, {"b8", "c6"}} {
		log = append(log, mustApply(t, s, mv[0], mv[1]))
	}

	replayed, err := Replay(log)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.FEN() != s.FEN() {
		t.Fatalf("replayed FEN %q != live FEN %q", replayed.FEN(), s.FEN())
	}
	if replayed.Turn() != domain.White {
		t.Fatalf("turn after four plies = %s, want white", replayed.Turn())
	}
}

func TestReplayRejectsCorruptHistory(t *testing.T) {
	_, err := Replay([]domain.Move{{From: "e2", To: "e4"}, {From: "e2", To: "e4"}})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for corrupt log, got %v", err)
	}
}
