package log

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, path string) (Header, bool, []Event) {
	t.Helper()
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	var events []Event
	for e, err := range r.Events() {
		require.NoError(t, err)
		events = append(events, e)
	}
	h, ok := r.Header()
	return h, ok, events
}

func TestFileLoggerWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.slog")
	before := time.Now().UTC().Add(-time.Second)

	logger, err := NewFileLogger(path, WithRole(RoleServer), WithServerID("2d9c2a3e-3b1f-4d4e-9a55-4b0b7c1f0b6e"))
	require.NoError(t, err)
	logger.Log(NewStateChange(StateEntityExecution, "e1", "waiting", "running", ""))
	assert.Equal(t, 1, logger.Written())
	require.NoError(t, logger.Sync())
	require.NoError(t, logger.Close())

	h, ok, events := readAll(t, path)
	require.True(t, ok)
	assert.Equal(t, CaptureFormat, h.Format)
	assert.Equal(t, CaptureVersion, h.Version)
	assert.Equal(t, RoleServer, h.Role)
	assert.Equal(t, "2d9c2a3e-3b1f-4d4e-9a55-4b0b7c1f0b6e", h.ServerID)
	assert.True(t, h.Created.After(before))
	require.Len(t, events, 1)
	assert.Equal(t, "running", events[0].StateChange.NewState)
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.slog")

	first, err := NewFileLogger(path, WithRole(RoleClient))
	require.NoError(t, err)
	first.Log(NewTransfer(DirectionOut, "b1", 0, 10, 20))
	require.NoError(t, first.Close())
	size := fileSize(t, path)

	second, err := NewFileLogger(path, WithRole(RoleServer))
	require.NoError(t, err)
	second.Log(NewTransfer(DirectionOut, "b1", 10, 10, 20))
	require.NoError(t, second.Close())

	h, _, events := readAll(t, path)
	assert.Equal(t, RoleClient, h.Role, "the first header stays")
	require.Len(t, events, 2)
	assert.Equal(t, uint64(10), events[1].Transfer.Offset)
	assert.Greater(t, fileSize(t, path), size)
}

func TestFileLoggerAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.slog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Sync())

	logger.Log(Event{ConnectionID: "late"})
	assert.Zero(t, logger.Written())
	assert.NoError(t, logger.Err())

	_, _, events := readAll(t, path)
	assert.Empty(t, events)
}

func TestFileLoggerBadPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "x.slog"))
	assert.Error(t, err)
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.slog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				logger.Log(Event{Timestamp: time.Now(), Frame: &FrameEvent{Size: i, Data: bytes.Repeat([]byte{0xab}, 32)}})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, logger.Close())
	assert.Equal(t, workers*perWorker, logger.Written())

	_, _, events := readAll(t, path)
	assert.Len(t, events, workers*perWorker)
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
