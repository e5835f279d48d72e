package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConsistencyMode selects how a move's durable save relates to its broadcast.
type ConsistencyMode string

const (
	// MemoryFirst applies and broadcasts the move even when the save fails;
	// the failure is reported to the mover and logged for reconciliation.
	MemoryFirst ConsistencyMode = "memory-first"
	// PersistFirst requires the save to succeed before the move is visible;
	// on failure the in-memory state is rolled back.
	PersistFirst ConsistencyMode = "persist-first"
)

type AppConfig struct {
	HTTPAddr string
	WSAddr   string

	DatabaseURL string
	RedisURL    string

	GracePeriod  time.Duration
	MoveQueueCap int
	Consistency  ConsistencyMode

	MsgTemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:     ":8080",
		WSAddr:       ":8081",
		GracePeriod:  60 * time.Second,
		MoveQueueCap: 8,
		Consistency:  MemoryFirst,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("SESSION_GRACE_PERIOD")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SESSION_GRACE_PERIOD %q", v)
		}
		cfg.GracePeriod = d
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_QUEUE_CAP")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MOVE_QUEUE_CAP %q", v)
		}
		cfg.MoveQueueCap = n
	}
	if v := strings.TrimSpace(os.Getenv("CONSISTENCY_MODE")); v != "" {
		switch ConsistencyMode(strings.ToLower(v)) {
		case MemoryFirst:
			cfg.Consistency = MemoryFirst
		case PersistFirst:
			cfg.Consistency = PersistFirst
		default:
			return nil, fmt.Errorf("invalid CONSISTENCY_MODE %q", v)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}
