// Package checkpoint persists crawl state so an interrupted crawl can resume
// from its last successful page instead of refetching the whole chain.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"pagewalker/internal/config"
)

// Snapshot is the persisted state of one crawl: where it is, how much it has
// done, and which locations it has already visited.
type Snapshot struct {
	Target       string    `json:"target"`
	Current      string    `json:"current"`
	VisitedCount int       `json:"visited_count"`
	RecordCount  int       `json:"record_count"`
	Visited      []string  `json:"visited"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists snapshots keyed by target name.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, target string) (Snapshot, bool, error)
	Remove(ctx context.Context, target string) error
	Close() error
}

// New builds a checkpoint store from configuration. Returns nil when
// checkpointing is disabled.
func New(cfg config.CheckpointConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "redis":
		return NewRedisStore(cfg.Addr, cfg.KeyPrefix, cfg.TTL.Duration), nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend %q", cfg.Backend)
	}
}
