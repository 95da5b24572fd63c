package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/log"
)

func TestFramerRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"small message", []byte("hello")},
		{"binary data", []byte{0x00, 0xFF, 0x7F, 0x80}},
		{"binary chunk", bytes.Repeat([]byte("x"), 2<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			f := NewFramer(buf)

			require.NoError(t, f.WriteFrame(tt.payload))
			assert.Equal(t, FrameSize(len(tt.payload)), buf.Len())

			got, err := f.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, tt.payload, got)
		})
	}
}

func TestFramerLengthPrefixIsBigEndian(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, NewFramer(buf).WriteFrame([]byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 0, 0, 3, 1, 2, 3}, buf.Bytes())
}

func TestFramerWriteErrors(t *testing.T) {
	f := NewFramerWithMaxSize(new(bytes.Buffer), 8)

	assert.ErrorIs(t, f.WriteFrame(nil), ErrMessageEmpty)
	assert.ErrorIs(t, f.WriteFrame(make([]byte, 9)), ErrMessageTooLarge)
	assert.NoError(t, f.WriteFrame(make([]byte, 8)))
}

func TestFramerReadErrors(t *testing.T) {
	frame := func(length uint32, payload []byte) *bytes.Buffer {
		buf := new(bytes.Buffer)
		binary.Write(buf, binary.BigEndian, length)
		buf.Write(payload)
		return buf
	}

	t.Run("too large", func(t *testing.T) {
		_, err := NewFramerWithMaxSize(frame(100, nil), 10).ReadFrame()
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	})

	t.Run("zero length", func(t *testing.T) {
		_, err := NewFramer(frame(0, nil)).ReadFrame()
		assert.ErrorIs(t, err, ErrMessageEmpty)
	})

	t.Run("truncated prefix", func(t *testing.T) {
		_, err := NewFramer(bytes.NewBuffer([]byte{0, 0})).ReadFrame()
		assert.ErrorIs(t, err, ErrFrameTruncated)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := NewFramer(frame(10, []byte{1, 2, 3})).ReadFrame()
		assert.ErrorIs(t, err, ErrFrameTruncated)
	})

	t.Run("clean EOF", func(t *testing.T) {
		_, err := NewFramer(new(bytes.Buffer)).ReadFrame()
		assert.Equal(t, io.EOF, err)
	})
}

func TestFramerMultipleFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	f := NewFramer(buf)

	messages := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, m := range messages {
		require.NoError(t, f.WriteFrame(m))
	}
	for _, want := range messages {
		got, err := f.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFramerConcurrentWrites(t *testing.T) {
	buf := new(bytes.Buffer)
	f := NewFramer(buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.WriteFrame(bytes.Repeat([]byte{byte(i)}, 100+i))
		}()
	}
	wg.Wait()

	seen := 0
	for {
		got, err := f.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		// Every frame must be made of a single repeated byte.
		assert.Equal(t, bytes.Repeat(got[:1], len(got)), got)
		seen++
	}
	assert.Equal(t, 20, seen)
}

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogging(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}
	f := NewFramer(buf)
	f.SetLogger(logger, "conn-1")

	require.NoError(t, f.WriteFrame([]byte{0xA0}))
	_, err := f.ReadFrame()
	require.NoError(t, err)

	events := logger.Events()
	require.Len(t, events, 2)

	assert.Equal(t, log.DirectionOut, events[0].Direction)
	assert.Equal(t, log.DirectionIn, events[1].Direction)
	for _, e := range events {
		assert.Equal(t, "conn-1", e.ConnectionID)
		assert.Equal(t, log.LayerTransport, e.Layer)
		assert.Equal(t, log.CategoryMessage, e.Category)
		require.NotNil(t, e.Frame)
		assert.Equal(t, 5, e.Frame.Size)
		assert.Equal(t, []byte{0xA0}, e.Frame.Data)
		assert.False(t, e.Frame.Truncated)
	}
}

func TestFramerLogsTruncatedData(t *testing.T) {
	logger := &capturingLogger{}
	f := NewFramer(new(bytes.Buffer))
	f.SetLogger(logger, "conn-1")

	require.NoError(t, f.WriteFrame(make([]byte, MaxLogFrameDataSize+10)))

	events := logger.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Frame.Truncated)
	assert.Len(t, events[0].Frame.Data, MaxLogFrameDataSize)
	assert.Equal(t, FrameSize(MaxLogFrameDataSize+10), events[0].Frame.Size)
}
