package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"pagewalker/pkg/types"
)

// Postgres persists each record as one row with a JSONB payload.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres opens the connection and ensures the records table exists.
func NewPostgres(dsn, table string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres sink requires a dsn")
	}
	if table == "" {
		table = "records"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	p := &Postgres{db: db, table: table}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id BIGSERIAL PRIMARY KEY,
            target TEXT NOT NULL DEFAULT '',
            payload JSONB NOT NULL,
            emitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `, p.table)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Emit inserts one record.
func (p *Postgres) Emit(ctx context.Context, target string, rec types.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf("INSERT INTO %s (target, payload) VALUES ($1, $2)", p.table)
	if _, err := p.db.ExecContext(ctx, query, target, payload); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close closes the underlying DB connection.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
