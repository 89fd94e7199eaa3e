package decoy

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"sync"
)

// The compressed payload inflates to this many filler bytes. The
// content is static, so it is generated once and cached for the life of
// the process; this is the only in-process cache in the engine.
const bombInflatedSize = 10 << 20

var (
	bombOnce sync.Once
	bombData []byte
	bombErr  error
)

// GzipBomb returns a maximally-compressed payload that inflates to a
// large fixed-size run of zero bytes.
func GzipBomb() ([]byte, error) {
	bombOnce.Do(func() {
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			bombErr = fmt.Errorf("init gzip writer: %w", err)
			return
		}
		filler := make([]byte, 64<<10)
		for written := 0; written < bombInflatedSize; written += len(filler) {
			if _, err := w.Write(filler); err != nil {
				bombErr = fmt.Errorf("write filler: %w", err)
				return
			}
		}
		if err := w.Close(); err != nil {
			bombErr = fmt.Errorf("close gzip writer: %w", err)
			return
		}
		bombData = buf.Bytes()
	})
	return bombData, bombErr
}
