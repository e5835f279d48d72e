package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/chessmaster/gamesync/internal/config"
	"github.com/chessmaster/gamesync/internal/gamesock"
	"github.com/chessmaster/gamesync/internal/gamestore"
	"github.com/chessmaster/gamesync/internal/httpapi"
	"github.com/chessmaster/gamesync/internal/hub"
	"github.com/chessmaster/gamesync/internal/msgcat"
	"github.com/chessmaster/gamesync/internal/obslog"
	"github.com/chessmaster/gamesync/internal/presence"
	"github.com/chessmaster/gamesync/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	store, err := gamestore.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}
	defer store.Close()

	var pres *presence.Store
	if cfg.RedisURL != "" {
		pres, err = presence.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("presence init error: %v", err)
		}
		defer pres.Close()
	}

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	reg := session.NewRegistry(store, session.Options{
		GracePeriod:  cfg.GracePeriod,
		MoveQueueCap: cfg.MoveQueueCap,
		Consistency:  cfg.Consistency,
	})
	mgr := session.NewManager(reg, hub.New(), store, pres, cat)

	api := httpapi.NewServer(cfg.HTTPAddr, store, pres)
	sock := gamesock.NewServer(cfg.WSAddr, mgr)

	errCh := make(chan error, 2)
	go func() { errCh <- api.Start() }()
	go func() { errCh <- sock.Start() }()

	obslog.L().Info("app_start",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("ws_addr", cfg.WSAddr),
		zap.String("consistency", string(cfg.Consistency)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		obslog.L().Info("app_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("server_error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sock.Shutdown(ctx); err != nil {
		obslog.L().Warn("ws_shutdown_error", zap.Error(err))
	}
	if err := api.Shutdown(); err != nil {
		obslog.L().Warn("http_shutdown_error", zap.Error(err))
	}
}
