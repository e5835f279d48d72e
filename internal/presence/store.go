// Package presence tracks which identities are currently watching a game.
// Entries live in Redis sets with a TTL, so stale entries from crashed
// processes age out on their own.
package presence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlViewers = 24 * time.Hour

type Store struct {
	rdb *redis.Client
}

func NewStore(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for presence store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) AddViewer(ctx context.Context, gameID, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return nil
	}
	key := keyViewers(gameID)
	if err := s.rdb.SAdd(ctx, key, identity).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, ttlViewers).Err()
}

func (s *Store) RemoveViewer(ctx context.Context, gameID, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return nil
	}
	return s.rdb.SRem(ctx, keyViewers(gameID), identity).Err()
}

func (s *Store) Viewers(ctx context.Context, gameID string) ([]string, error) {
	return s.rdb.SMembers(ctx, keyViewers(gameID)).Result()
}

func (s *Store) ViewerCount(ctx context.Context, gameID string) (int64, error) {
	return s.rdb.SCard(ctx, keyViewers(gameID)).Result()
}

// Clear drops the viewer set, used when a session is evicted.
func (s *Store) Clear(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, keyViewers(gameID)).Err()
}

func keyViewers(gameID string) string { return "game:viewers:" + strings.TrimSpace(gameID) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
