package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/chessmaster/gamesync/internal/config"
	"github.com/chessmaster/gamesync/internal/domain"
	"github.com/chessmaster/gamesync/internal/engine"
	"github.com/chessmaster/gamesync/internal/gamestore"
	"github.com/chessmaster/gamesync/internal/hub"
	"github.com/chessmaster/gamesync/internal/msgcat"
	"github.com/chessmaster/gamesync/internal/presence"
	"github.com/chessmaster/gamesync/pkg/gamedto"
)

type recordedEvent struct {
	Type string
	Data any
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []recordedEvent
}

func (c *fakeConn) Identity() string { return c.id }

func (c *fakeConn) Send(eventType string, data any) {
	c.mu.Lock()
	c.events = append(c.events, recordedEvent{Type: eventType, Data: data})
	c.mu.Unlock()
}

func (c *fakeConn) byType(eventType string) []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recordedEvent
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestManager(t *testing.T, store *gamestore.MemStore, clock Clock) (*Manager, *hub.Hub) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	h := hub.New()
	reg := NewRegistry(store, Options{
		GracePeriod:  time.Minute,
		MoveQueueCap: 16,
		Consistency:  config.MemoryFirst,
		Clock:        clock,
	})
	return NewManager(reg, h, store, nil, cat), h
}

func TestJoinSendsSnapshotAndNotifiesRoom(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", []domain.Move{{From: "e2", To: "e4"}}, false)
	m, _ := newTestManager(t, store, newFakeClock())

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	ctx := context.Background()

	if err := m.Join(ctx, "g1", alice); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if err := m.Join(ctx, "g1", bob); err != nil {
		t.Fatalf("Join bob: %v", err)
	}

	states := bob.byType(gamedto.EventGameState)
	if len(states) != 1 {
		t.Fatalf("bob game-state events = %d", len(states))
	}
	snap := states[0].Data.(gamedto.GameState)
	if snap.GameID != "g1" || snap.Turn != "black" || len(snap.MoveLog) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	joined := alice.byType(gamedto.EventPlayerJoined)
	if len(joined) != 1 || joined[0].Data.(gamedto.PlayerJoined).Identity != "bob" {
		t.Fatalf("alice player-joined events = %+v", joined)
	}
	if self := bob.byType(gamedto.EventPlayerJoined); len(self) != 0 {
		t.Fatalf("bob notified about own join: %+v", self)
	}
}

func TestJoinClaimsOpenSlot(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "", nil, false)
	m, _ := newTestManager(t, store, newFakeClock())
	ctx := context.Background()

	bob := &fakeConn{id: "bob"}
	if err := m.Join(ctx, "g1", bob); err != nil {
		t.Fatalf("Join: %v", err)
	}

	sess, _ := m.reg.Resolve(ctx, "g1")
	if sess.SlotOf("bob") != domain.Black {
		t.Fatalf("bob slot = %q, want black", sess.SlotOf("bob"))
	}
	stored, _ := store.FetchGame(ctx, "g1")
	if stored.BlackPlayerID != "bob" {
		t.Fatalf("claim not persisted: %+v", stored)
	}

	// a third identity finds the game full and spectates
	carol := &fakeConn{id: "carol"}
	if err := m.Join(ctx, "g1", carol); err != nil {
		t.Fatalf("Join carol: %v", err)
	}
	if sess.SlotOf("carol") != "" {
		t.Fatal("spectator was seated")
	}
	if err := m.Move(ctx, "g1", carol, gamedto.GameMove{GameID: "g1", From: "e2", To: "e4"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("spectator move err = %v, want ErrNotAuthorized", err)
	}
}

func TestMoveBroadcastsToRoom(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", nil, false)
	m, _ := newTestManager(t, store, newFakeClock())
	ctx := context.Background()

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	m.Join(ctx, "g1", alice)
	m.Join(ctx, "g1", bob)

	if err := m.Move(ctx, "g1", alice, gamedto.GameMove{GameID: "g1", From: "e2", To: "e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}

	for _, c := range []*fakeConn{alice, bob} {
		made := c.byType(gamedto.EventMoveMade)
		if len(made) != 1 {
			t.Fatalf("conn %s move-made events = %d", c.id, len(made))
		}
		ev := made[0].Data.(gamedto.MoveMade)
		if ev.Move.SAN != "e4" || ev.Turn != "black" || ev.IsGameOver {
			t.Fatalf("conn %s move-made = %+v", c.id, ev)
		}
	}
}

func TestMoveEventsDeliveredInApplicationOrder(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", nil, false)
	m, _ := newTestManager(t, store, newFakeClock())
	ctx := context.Background()

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	carol := &fakeConn{id: "carol"} // seats taken, watches only
	m.Join(ctx, "g1", alice)
	m.Join(ctx, "g1", bob)
	m.Join(ctx, "g1", carol)

	line := []gamedto.GameMove{
		{From: "e2", To: "e4"}, {From: "e7", To: "e5"},
		{From: "g1", To: "f3"}, {From: "b8", To: "c6"},
		{From: "f1", To: "c4"}, {From: "g8", To: "f6"},
		{From: "b1", To: "c3"}, {From: "f8", To: "c5"},
		{From: "d2", To: "d3"}, {From: "d7", To: "d6"},
		{From: "c1", To: "e3"}, {From: "c5", To: "e3"},
		{From: "f2", To: "e3"}, {From: "c8", To: "e6"},
		{From: "c4", To: "e6"}, {From: "f7", To: "e6"},
	}

	// both players race; each retries its own next move until it is accepted
	play := func(c *fakeConn, start int) {
		for i := start; i < len(line); i += 2 {
			for {
				err := m.Move(ctx, "g1", c, line[i])
				if err == nil {
					break
				}
				if errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrSessionBusy) {
					continue
				}
				t.Errorf("Move %s%s: %v", line[i].From, line[i].To, err)
				return
			}
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); play(alice, 0) }()
	go func() { defer wg.Done(); play(bob, 1) }()
	wg.Wait()

	made := carol.byType(gamedto.EventMoveMade)
	if len(made) != len(line) {
		t.Fatalf("move-made events = %d, want %d", len(made), len(line))
	}
	for i, ev := range made {
		got := ev.Data.(gamedto.MoveMade)
		if got.Move.From != line[i].From || got.Move.To != line[i].To {
			t.Fatalf("event %d = %s%s, want %s%s", i, got.Move.From, got.Move.To, line[i].From, line[i].To)
		}
	}
}

func TestCheckmateBroadcastsGameOver(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", nil, false)
	clock := newFakeClock()
	m, h := newTestManager(t, store, clock)
	ctx := context.Background()

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	m.Join(ctx, "g1", alice)
	m.Join(ctx, "g1", bob)

	line := []struct {
		conn *fakeConn
		from string
		to   string
	}{
		{alice, "e2", "e4"}, {bob, "e7", "e5"},
		{alice, "d1", "h5"}, {bob, "b8", "c6"},
		{alice, "f1", "c4"}, {bob, "g8", "f6"},
		{alice, "h5", "f7"},
	}
	for _, mv := range line {
		if err := m.Move(ctx, "g1", mv.conn, gamedto.GameMove{GameID: "g1", From: mv.from, To: mv.to}); err != nil {
			t.Fatalf("Move %s%s: %v", mv.from, mv.to, err)
		}
	}

	over := bob.byType(gamedto.EventGameOver)
	if len(over) != 1 {
		t.Fatalf("game-over events = %d", len(over))
	}
	ev := over[0].Data.(gamedto.GameOver)
	if ev.Winner == nil || *ev.Winner != "white" || ev.Reason != "checkmate" {
		t.Fatalf("game-over = %+v", ev)
	}

	// the room is torn down when the grace period ends
	clock.Advance(2 * time.Minute)
	if h.Subscribers("g1") != 0 {
		t.Fatalf("room survived eviction: %d subscribers", h.Subscribers("g1"))
	}
}

func TestLeaveNotifiesRoom(t *testing.T) {
	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", nil, false)
	m, h := newTestManager(t, store, newFakeClock())
	ctx := context.Background()

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	m.Join(ctx, "g1", alice)
	m.Join(ctx, "g1", bob)

	m.Leave(ctx, "g1", bob)

	left := alice.byType(gamedto.EventPlayerLeft)
	if len(left) != 1 || left[0].Data.(gamedto.PlayerLeft).Identity != "bob" {
		t.Fatalf("player-left events = %+v", left)
	}
	if h.Subscribers("g1") != 1 {
		t.Fatalf("subscribers = %d, want 1", h.Subscribers("g1"))
	}

	// leaving twice is harmless and does not re-notify
	m.Leave(ctx, "g1", bob)
	if got := alice.byType(gamedto.EventPlayerLeft); len(got) != 1 {
		t.Fatalf("duplicate leave re-notified: %+v", got)
	}
}

func TestJoinAndLeaveTrackPresence(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	pres, err := presence.NewStore(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("presence.NewStore: %v", err)
	}

	store := gamestore.NewMemStore()
	seedGame(store, "g1", "alice", "bob", nil, false)
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	clock := newFakeClock()
	reg := NewRegistry(store, Options{
		GracePeriod:  time.Minute,
		MoveQueueCap: 16,
		Consistency:  config.MemoryFirst,
		Clock:        clock,
	})
	m := NewManager(reg, hub.New(), store, pres, cat)
	ctx := context.Background()

	alice := &fakeConn{id: "alice"}
	bob := &fakeConn{id: "bob"}
	m.Join(ctx, "g1", alice)
	m.Join(ctx, "g1", bob)

	if n, _ := pres.ViewerCount(ctx, "g1"); n != 2 {
		t.Fatalf("viewer count = %d, want 2", n)
	}

	m.Leave(ctx, "g1", bob)
	if n, _ := pres.ViewerCount(ctx, "g1"); n != 1 {
		t.Fatalf("viewer count after leave = %d, want 1", n)
	}

	// eviction clears the set
	sess, _ := reg.Resolve(ctx, "g1")
	playScholarsMate(t, reg, sess)
	clock.Advance(2 * time.Minute)
	if n, _ := pres.ViewerCount(ctx, "g1"); n != 0 {
		t.Fatalf("viewer count after eviction = %d, want 0", n)
	}
}

func TestErrorMessages(t *testing.T) {
	store := gamestore.NewMemStore()
	m, _ := newTestManager(t, store, newFakeClock())

	cases := []struct {
		err  error
		want string
	}{
		{gamestore.ErrNotFound, "Game not found"},
		{ErrNotAuthorized, "Not authorized for this game"},
		{ErrNotYourTurn, "Not your turn"},
		{engine.ErrIllegalMove, "Invalid move"},
		{ErrGameFinished, "Game is already finished"},
		{ErrSessionBusy, "Too many pending moves, try again"},
		{ErrPersistence, "Move applied but could not be saved"},
		{errors.New("boom"), "Failed to process request"},
	}
	for _, tc := range cases {
		if got := m.ErrorMessage(tc.err); got != tc.want {
			t.Fatalf("ErrorMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
