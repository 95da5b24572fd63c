package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/wire"
)

func jsonAdapter(level slog.Level) (*SlogAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	return NewSlogAdapter(logger), &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSlogAdapterMessage(t *testing.T) {
	adapter, buf := jsonAdapter(slog.LevelDebug)
	op := wire.OpInvoke
	status := wire.StatusSuccess
	took := 2 * time.Millisecond

	adapter.Log(Event{
		ConnectionID: "c1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Target:       "org.silastandard/examples/GreetingProvider/v1/Command/SayHello",
		Message:      &MessageEvent{Type: MessageTypeRequest, MessageID: 7, Operation: &op},
	})
	adapter.Log(Event{
		ConnectionID: "c1",
		Direction:    DirectionOut,
		Category:     CategoryMessage,
		Message:      &MessageEvent{Type: MessageTypeResponse, MessageID: 7, Status: &status, ProcessingTime: &took},
	})

	got := lines(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "sila MESSAGE", got[0]["msg"])
	assert.Equal(t, "DEBUG", got[0]["level"])
	assert.Equal(t, "IN", got[0]["dir"])
	assert.Equal(t, "Invoke", got[0]["op"])
	assert.Equal(t, "REQUEST", got[0]["type"])
	assert.Contains(t, got[0]["target"], "SayHello")
	assert.Equal(t, "SUCCESS", got[1]["status"])
	assert.EqualValues(t, took, got[1]["took"])
}

func TestSlogAdapterStateAndTransfer(t *testing.T) {
	adapter, buf := jsonAdapter(slog.LevelDebug)

	adapter.Log(NewStateChange(StateEntityExecution, "x1", "running", "finishedWithError", "cancelled"))
	adapter.Log(NewTransfer(DirectionOut, "b1", 512, 256, 1024))
	adapter.Log(Event{Frame: &FrameEvent{Size: 300, Truncated: true}, Category: CategoryMessage})

	got := lines(t, buf)
	require.Len(t, got, 3)
	assert.Equal(t, "sila STATE", got[0]["msg"])
	assert.Equal(t, "x1", got[0]["EXECUTION"])
	assert.Equal(t, "finishedWithError", got[0]["to"])
	assert.Equal(t, "cancelled", got[0]["reason"])
	assert.NotContains(t, got[0], "conn")

	assert.Equal(t, "sila TRANSFER", got[1]["msg"])
	assert.EqualValues(t, 512, got[1]["offset"])
	assert.EqualValues(t, 1024, got[1]["total"])

	assert.Equal(t, "sila frame", got[2]["msg"])
	assert.Equal(t, true, got[2]["truncated"])
}

func TestSlogAdapterLevels(t *testing.T) {
	adapter, buf := jsonAdapter(slog.LevelInfo)
	code := 3

	adapter.Log(NewTransfer(DirectionIn, "b1", 0, 1, 1))
	assert.Empty(t, buf.String(), "debug events are filtered")

	adapter.Log(Event{Category: CategoryError, Error: &ErrorEventData{Layer: LayerTransport, Message: "frame too large", Code: &code}})
	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "WARN", got[0]["level"])
	assert.Equal(t, "frame too large", got[0]["error"])
	assert.EqualValues(t, 3, got[0]["code"])

	buf.Reset()
	adapter.Level = slog.LevelInfo
	adapter.Log(NewTransfer(DirectionIn, "b1", 0, 1, 1))
	assert.Len(t, lines(t, buf), 1)
}
