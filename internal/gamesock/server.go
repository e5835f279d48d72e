// Package gamesock is the realtime surface: a websocket endpoint where
// clients join games, submit moves and receive room broadcasts.
package gamesock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chessmaster/gamesync/internal/obslog"
	"github.com/chessmaster/gamesync/internal/session"
	"github.com/chessmaster/gamesync/pkg/gamedto"
)

const (
	writeTimeout = 5 * time.Second
	egressBuffer = 32
)

type Server struct {
	mgr  *session.Manager
	http *http.Server
}

func NewServer(addr string, mgr *session.Manager) *Server {
	s := &Server{mgr: mgr}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	obslog.L().Info("ws_listen", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	identity := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if identity == "" {
		identity = strings.TrimSpace(r.URL.Query().Get("identity"))
	}

	c := &client{
		identity: identity,
		conn:     conn,
		egress:   make(chan gamedto.Envelope, egressBuffer),
		done:     make(chan struct{}),
		joined:   make(map[string]struct{}),
	}
	obslog.L().Info("ws_client_connect", zap.String("identity", identity))

	go c.writeLoop()
	s.readLoop(r.Context(), c)

	// drop room memberships the client still held
	for _, gameID := range c.rooms() {
		s.mgr.Leave(context.Background(), gameID, c)
	}
	c.close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_client_disconnect", zap.String("identity", identity))
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var env gamedto.Envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			return
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, env gamedto.Envelope) {
	switch env.Type {
	case gamedto.EventJoinGame:
		var req gamedto.JoinGame
		if !decode(c, env.Data, &req) {
			return
		}
		if err := s.mgr.Join(ctx, req.GameID, c); err != nil {
			s.sendError(c, err)
			return
		}
		c.track(req.GameID)

	case gamedto.EventGameMove:
		var req gamedto.GameMove
		if !decode(c, env.Data, &req) {
			return
		}
		if err := s.mgr.Move(ctx, req.GameID, c, req); err != nil {
			s.sendError(c, err)
		}

	case gamedto.EventLeaveGame:
		var req gamedto.LeaveGame
		if !decode(c, env.Data, &req) {
			return
		}
		s.mgr.Leave(ctx, req.GameID, c)
		c.untrack(req.GameID)

	default:
		obslog.L().Warn("unknown_event",
			zap.String("type", env.Type),
			zap.String("identity", c.identity))
	}
}

func (s *Server) sendError(c *client, err error) {
	c.Send(gamedto.EventGameError, gamedto.GameError{Message: s.mgr.ErrorMessage(err)})
}

func decode(c *client, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.Send(gamedto.EventGameError, gamedto.GameError{Message: "Failed to process request"})
		return false
	}
	return true
}

// client is one websocket connection. Broadcasts are queued on egress and
// written by a single goroutine; wsjson.Write is not safe for concurrent use.
type client struct {
	identity string
	conn     *websocket.Conn
	egress   chan gamedto.Envelope
	done     chan struct{}

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

func (c *client) Identity() string { return c.identity }

// Send queues one event. A subscriber that cannot keep up is disconnected
// rather than allowed to stall the room.
func (c *client) Send(eventType string, data any) {
	env, err := gamedto.NewEnvelope(eventType, data)
	if err != nil {
		obslog.L().Error("event_marshal_failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case c.egress <- env:
	case <-c.done:
	default:
		obslog.L().Warn("slow_consumer_drop", zap.String("identity", c.identity))
		c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.egress:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.conn, env)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close(code, reason)
}

func (c *client) track(gameID string) {
	c.mu.Lock()
	c.joined[gameID] = struct{}{}
	c.mu.Unlock()
}

func (c *client) untrack(gameID string) {
	c.mu.Lock()
	delete(c.joined, gameID)
	c.mu.Unlock()
}

func (c *client) rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	return out
}
