package alerts

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTransportAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "webtrap.jsonl")
	transport, err := NewFileTransport(path)
	require.NoError(t, err)
	defer transport.Close()

	ctx := context.Background()
	require.NoError(t, transport.Send(ctx, &Event{ID: "evt-1", Category: "injection_probe"}))
	require.NoError(t, transport.Send(ctx, &Event{ID: "evt-2", Category: "canary_opened"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		ids = append(ids, event.ID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"evt-1", "evt-2"}, ids)
}
