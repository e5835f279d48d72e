// Package httpapi is the REST surface for creating and inspecting games.
// Realtime play happens over the websocket endpoint; this API only manages
// the durable records.
package httpapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chessmaster/gamesync/internal/gamestore"
	"github.com/chessmaster/gamesync/internal/obslog"
	"github.com/chessmaster/gamesync/internal/presence"
	"github.com/chessmaster/gamesync/pkg/gamedto"
)

type Server struct {
	store gamestore.Store
	pres  *presence.Store // optional
	srv   *fasthttp.Server
	addr  string
}

func NewServer(addr string, store gamestore.Store, pres *presence.Store) *Server {
	s := &Server{store: store, pres: pres, addr: addr}
	s.srv = &fasthttp.Server{
		Handler:      s.route,
		Name:         "gamesync",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	obslog.L().Info("http_listen", zap.String("addr", s.addr))
	return s.srv.ListenAndServe(s.addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")

	case path == "/games" && method == fasthttp.MethodPost:
		s.createGame(ctx)

	case strings.HasPrefix(path, "/games/"):
		rest := strings.TrimPrefix(path, "/games/")
		switch {
		case strings.HasSuffix(rest, "/join") && method == fasthttp.MethodPost:
			s.joinGame(ctx, strings.TrimSuffix(rest, "/join"))
		case !strings.Contains(rest, "/") && method == fasthttp.MethodGet:
			s.getGame(ctx, rest)
		default:
			writeError(ctx, fasthttp.StatusNotFound, "not found")
		}

	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

type createGameRequest struct {
	Color string `json:"color"`
}

func (s *Server) createGame(ctx *fasthttp.RequestCtx) {
	identity := requireIdentity(ctx)
	if identity == "" {
		return
	}
	var req createGameRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid body")
			return
		}
	}
	choice := gamestore.ColorChoice(strings.ToLower(strings.TrimSpace(req.Color)))
	switch choice {
	case gamestore.ChoiceWhite, gamestore.ChoiceBlack:
	default:
		choice = gamestore.ChoiceRandom
	}

	g, err := s.store.CreateGame(ctx, identity, choice)
	if err != nil {
		obslog.L().Error("game_create_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "failed to create game")
		return
	}
	obslog.L().Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("identity", identity))
	writeJSON(ctx, fasthttp.StatusCreated, g)
}

func (s *Server) joinGame(ctx *fasthttp.RequestCtx, id string) {
	identity := requireIdentity(ctx)
	if identity == "" {
		return
	}
	g, err := s.store.ClaimSlot(ctx, id, identity)
	switch {
	case errors.Is(err, gamestore.ErrNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "game not found")
	case errors.Is(err, gamestore.ErrGameFull):
		writeError(ctx, fasthttp.StatusConflict, "game already has two players")
	case err != nil:
		obslog.L().Error("game_claim_failed", zap.String("game_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "failed to join game")
	default:
		writeJSON(ctx, fasthttp.StatusOK, g)
	}
}

func (s *Server) getGame(ctx *fasthttp.RequestCtx, id string) {
	g, err := s.store.FetchGame(ctx, id)
	switch {
	case errors.Is(err, gamestore.ErrNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "game not found")
		return
	case err != nil:
		obslog.L().Error("game_fetch_failed", zap.String("game_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "failed to fetch game")
		return
	}

	view := gamedto.GameView{Game: g}
	if s.pres != nil {
		if n, err := s.pres.ViewerCount(ctx, id); err == nil {
			view.Viewers = n
		}
	}
	writeJSON(ctx, fasthttp.StatusOK, view)
}

func requireIdentity(ctx *fasthttp.RequestCtx) string {
	identity := strings.TrimSpace(string(ctx.Request.Header.Peek("X-User-Id")))
	if identity == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "X-User-Id header required")
	}
	return identity
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("response_marshal_failed", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]string{"error": message})
}
