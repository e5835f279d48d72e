package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chessmaster/gamesync/internal/config"
	"github.com/chessmaster/gamesync/internal/engine"
	"github.com/chessmaster/gamesync/internal/gamestore"
	"github.com/chessmaster/gamesync/internal/obslog"
)

// Options tune the registry. Zero values fall back to the defaults used in
// production.
type Options struct {
	GracePeriod  time.Duration
	MoveQueueCap int
	Consistency  config.ConsistencyMode
	Clock        Clock
}

type hydration struct {
	done chan struct{}
	sess *Session
	err  error
}

// Registry maps game identifiers to live sessions. Resolution is
// insert-if-absent: concurrent resolves for the same game share one
// hydration and get the same session back.
type Registry struct {
	store    gamestore.Store
	clock    Clock
	grace    time.Duration
	queueCap int32
	mode     config.ConsistencyMode

	mu        sync.Mutex
	sessions  map[string]*Session
	hydrating map[string]*hydration

	onEvict func(gameID string)
}

func NewRegistry(store gamestore.Store, opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 60 * time.Second
	}
	if opts.MoveQueueCap <= 0 {
		opts.MoveQueueCap = 8
	}
	if opts.Consistency == "" {
		opts.Consistency = config.MemoryFirst
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Registry{
		store:     store,
		clock:     opts.Clock,
		grace:     opts.GracePeriod,
		queueCap:  int32(opts.MoveQueueCap),
		mode:      opts.Consistency,
		sessions:  make(map[string]*Session),
		hydrating: make(map[string]*hydration),
	}
}

// OnEvict registers a callback invoked after a session leaves the registry.
// Set once during wiring, before any resolve.
func (r *Registry) OnEvict(f func(gameID string)) { r.onEvict = f }

// Resolve returns the live session for gameID, hydrating it from the store
// when absent. Returns gamestore.ErrNotFound for unknown games and
// ErrCorruptHistory when the stored move log no longer replays.
func (r *Registry) Resolve(ctx context.Context, gameID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[gameID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	if h, ok := r.hydrating[gameID]; ok {
		r.mu.Unlock()
		select {
		case <-h.done:
			return h.sess, h.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h := &hydration{done: make(chan struct{})}
	r.hydrating[gameID] = h
	r.mu.Unlock()

	sess, err := r.hydrate(ctx, gameID)

	r.mu.Lock()
	delete(r.hydrating, gameID)
	if err == nil {
		r.sessions[gameID] = sess
	}
	r.mu.Unlock()

	h.sess, h.err = sess, err
	close(h.done)
	return sess, err
}

func (r *Registry) hydrate(ctx context.Context, gameID string) (*Session, error) {
	g, err := r.store.FetchGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st, err := engine.Replay(g.Moves)
	if err != nil {
		obslog.L().Error("session_replay_failed",
			zap.String("game_id", gameID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}

	sess := &Session{
		GameID:     gameID,
		game:       g,
		state:      st,
		lastActive: r.clock.Now(),
	}
	if g.Finished || st.Flags().IsGameOver {
		// A finished game still gets a resident session so late subscribers
		// see the final position, but it is already on the eviction clock.
		sess.phase = PhaseGrace
		sess.game.Finished = true
		r.scheduleEviction(sess)
	}
	obslog.L().Info("session_hydrate",
		zap.String("game_id", gameID),
		zap.Int("moves", len(g.Moves)),
		zap.Bool("finished", sess.phase != PhaseActive))
	return sess, nil
}

// scheduleEviction arms the grace timer once. The timer never resets; late
// joins during the grace period do not extend residency.
func (r *Registry) scheduleEviction(sess *Session) {
	if sess.evictTimer != nil {
		return
	}
	sess.evictTimer = r.clock.AfterFunc(r.grace, func() { r.evict(sess) })
}

func (r *Registry) evict(sess *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[sess.GameID]; ok && cur == sess {
		delete(r.sessions, sess.GameID)
	}
	r.mu.Unlock()

	sess.mu.Lock()
	sess.phase = PhaseEvicted
	sess.mu.Unlock()

	if r.onEvict != nil {
		r.onEvict(sess.GameID)
	}
	obslog.L().Info("session_evict", zap.String("game_id", sess.GameID))
}

// Resident reports whether a session for gameID is currently in memory.
func (r *Registry) Resident(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[gameID]
	return ok
}
