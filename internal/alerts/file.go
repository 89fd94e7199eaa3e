package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"webtrap/internal/logger"
)

// FileTransport appends events to a JSON lines file, one object per
// line. It is the durable local record when no remote transport is
// reachable.
type FileTransport struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileTransport creates a JSONL transport, creating parent
// directories as needed.
func NewFileTransport(path string) (*FileTransport, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create alert directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open alert file: %w", err)
	}

	logger.Infof("alert file transport initialized: %s", path)
	return &FileTransport{file: f, encoder: json.NewEncoder(f)}, nil
}

// Name identifies the transport in logs.
func (t *FileTransport) Name() string {
	return "file"
}

// Send appends one event.
func (t *FileTransport) Send(_ context.Context, event *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.encoder.Encode(event); err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}
