package log

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileOption configures the header of a new capture file.
type FileOption func(*Header)

// WithRole records whether the capture was taken by a server or a client.
func WithRole(role Role) FileOption {
	return func(h *Header) { h.Role = role }
}

// WithServerID records the UUID of the server the capture belongs to.
func WithServerID(id string) FileOption {
	return func(h *Header) { h.ServerID = id }
}

// FileLogger appends events to a capture file. A new or empty file starts
// with a Header; an existing capture is continued without one.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *cbor.Encoder
	written int
	err     error
	closed  bool
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{file: f, enc: NewEncoder(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		h := Header{Format: CaptureFormat, Version: CaptureVersion, Created: time.Now().UTC()}
		for _, opt := range opts {
			opt(&h)
		}
		if err := l.enc.Encode(h); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Log appends event. Write errors do not reach the caller; the first one is
// kept for Err and stops further writes.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.err != nil {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.err = err
		return
	}
	l.written++
}

// Written returns the number of events appended since the file was opened.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Err returns the first write error.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Sync flushes the file to disk.
func (l *FileLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.file.Sync()
}

// Close closes the file. Later events are dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
