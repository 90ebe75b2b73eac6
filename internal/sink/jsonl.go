package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"pagewalker/pkg/types"
)

// JSONL writes one JSON object per line to a file.
type JSONL struct {
	mu  sync.Mutex
	fh  *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONL opens (or creates) the output file in append mode.
func NewJSONL(path string) (*JSONL, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink file: %w", err)
	}
	buf := bufio.NewWriter(fh)
	return &JSONL{fh: fh, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Emit writes the record as one JSON line.
func (j *JSONL) Emit(_ context.Context, _ string, rec types.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Close flushes buffered output and closes the file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.buf.Flush(); err != nil {
		j.fh.Close()
		return fmt.Errorf("flush sink file: %w", err)
	}
	return j.fh.Close()
}
