// Package sink delivers extracted records to their destination. The crawl
// loop only depends on the Emit contract; within one crawl, records arrive in
// page discovery order.
package sink

import (
	"context"
	"fmt"

	"pagewalker/internal/config"
	"pagewalker/pkg/types"
)

// Sink accepts one record at a time. The target label identifies which crawl
// produced the record; backends that partition or group output key on it.
type Sink interface {
	Emit(ctx context.Context, target string, rec types.Record) error
	Close() error
}

// New builds a sink from configuration.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Kind {
	case "", "memory":
		return NewMemory(), nil
	case "jsonl":
		return NewJSONL(cfg.Path)
	case "postgres":
		return NewPostgres(cfg.DSN, cfg.Table)
	case "kafka":
		return NewKafka(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Kind)
	}
}
