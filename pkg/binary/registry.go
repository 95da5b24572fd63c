package binary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/lifetime"
	"github.com/sila-protocol/sila-go/pkg/log"
)

// Binary transfer errors.
var (
	// ErrBinaryUnknown indicates an unknown, expired, deleted or consumed binary.
	ErrBinaryUnknown = errors.New("binary unknown")

	// ErrInvalidChunkIndex indicates a chunk at the wrong offset, an empty
	// chunk, or one that would exceed the declared size.
	ErrInvalidChunkIndex = errors.New("invalid chunk index")

	// ErrChunkTooLarge indicates a chunk above MaxChunkSize.
	ErrChunkTooLarge = errors.New("chunk too large")

	// ErrInvalidSize indicates a declared size the registry will not accept.
	ErrInvalidSize = errors.New("invalid binary size")
)

// Direction distinguishes uploads from downloads.
type Direction uint8

const (
	Upload Direction = iota
	Download
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return "unknown"
	}
}

// State is the transfer state of a binary.
type State uint8

const (
	StateCreated State = iota
	StateUploading
	StateComplete
	StateAvailable
	StateDownloading
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUploading:
		return "uploading"
	case StateComplete:
		return "complete"
	case StateAvailable:
		return "available"
	case StateDownloading:
		return "downloading"
	default:
		return "unknown"
	}
}

// Observer receives transfer events, e.g. for metrics.
type Observer interface {
	BinaryCreated(dir Direction)
	BinaryRemoved(dir Direction, reason string)
	ChunkTransferred(dir Direction, size int)
}

// Config configures a Registry.
type Config struct {
	// MaxChunkSize bounds a single chunk.
	MaxChunkSize int

	// MaxTotalSize bounds a single binary. Zero means unbounded.
	MaxTotalSize uint64

	// IdleTimeout removes entries that see no operation for this long.
	IdleTimeout time.Duration

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives state and transfer events. Nil disables.
	ProtocolLogger log.Logger

	// Observer receives transfer events. Nil disables.
	Observer Observer
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: 2 << 20,
		IdleTimeout:  10 * time.Minute,
	}
}

// Info is a snapshot of a binary.
type Info struct {
	ID          uuid.UUID
	Direction   Direction
	State       State
	Owner       string
	TotalSize   uint64
	ChunkCount  uint32
	Transferred uint64
	Lifetime    time.Duration
}

type entry struct {
	mu sync.Mutex

	id         uuid.UUID
	dir        Direction
	state      State
	owner      string
	total      uint64
	chunkCount uint32
	data       []byte
	pos        uint64
	removed    bool

	// settled is closed once an upload is complete or the entry is removed.
	settled     chan struct{}
	settledOnce sync.Once
}

func (e *entry) settle() {
	e.settledOnce.Do(func() { close(e.settled) })
}

// Registry holds all in-flight binaries.
type Registry struct {
	config Config

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	timers *lifetime.Manager
}

// NewRegistry creates a registry.
func NewRegistry(config Config) *Registry {
	def := DefaultConfig()
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = def.MaxChunkSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	r := &Registry{
		config:  config,
		entries: make(map[uuid.UUID]*entry),
		timers:  lifetime.NewManager(),
	}
	r.timers.OnExpiry(func(id uuid.UUID) {
		r.remove(id, "expired")
	})
	return r
}

// MaxChunkSize returns the largest accepted chunk.
func (r *Registry) MaxChunkSize() int { return r.config.MaxChunkSize }

// Len returns the number of live binaries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close removes all binaries and stops their timers.
func (r *Registry) Close() {
	r.timers.CancelAll()

	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.remove(id, "closed")
	}
}

// CreateUpload registers an upload of total bytes for the parameter owner.
// A chunkCount of zero leaves the number of chunks to the client.
func (r *Registry) CreateUpload(owner string, total uint64, chunkCount uint32) (Info, error) {
	if r.config.MaxTotalSize > 0 && total > r.config.MaxTotalSize {
		return Info{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidSize, total, r.config.MaxTotalSize)
	}
	if chunkCount > 0 && total > uint64(chunkCount)*uint64(r.config.MaxChunkSize) {
		return Info{}, fmt.Errorf("%w: %d bytes do not fit in %d chunks of %d", ErrInvalidSize, total, chunkCount, r.config.MaxChunkSize)
	}

	e := &entry{
		id:         uuid.New(),
		dir:        Upload,
		state:      StateCreated,
		owner:      owner,
		total:      total,
		chunkCount: chunkCount,
		data:       make([]byte, 0, initialCap(total)),
		settled:    make(chan struct{}),
	}
	if total == 0 {
		e.state = StateComplete
		e.settle()
	}
	r.insert(e)
	return r.snapshot(e), nil
}

// AppendChunk appends data at offset to an upload and returns the number of
// bytes received so far. On error the upload is unchanged.
func (r *Registry) AppendChunk(id uuid.UUID, offset uint64, data []byte) (uint64, error) {
	e, err := r.lookup(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || e.dir != Upload {
		return 0, ErrBinaryUnknown
	}
	received := uint64(len(e.data))
	switch {
	case e.state == StateComplete:
		return received, fmt.Errorf("%w: upload already complete", ErrInvalidChunkIndex)
	case offset != received:
		return received, fmt.Errorf("%w: offset %d, expected %d", ErrInvalidChunkIndex, offset, received)
	case len(data) == 0:
		return received, fmt.Errorf("%w: empty chunk", ErrInvalidChunkIndex)
	case len(data) > r.config.MaxChunkSize:
		return received, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, len(data), r.config.MaxChunkSize)
	case received+uint64(len(data)) > e.total:
		return received, fmt.Errorf("%w: chunk ends at %d, size is %d", ErrInvalidChunkIndex, received+uint64(len(data)), e.total)
	}

	old := e.state
	e.data = append(e.data, data...)
	received = uint64(len(e.data))
	e.state = StateUploading
	if received == e.total {
		e.state = StateComplete
		e.settle()
	}
	_ = r.timers.Touch(id)

	r.emit(log.NewTransfer(log.DirectionIn, id.String(), offset, len(data), e.total))
	if r.config.Observer != nil {
		r.config.Observer.ChunkTransferred(Upload, len(data))
	}
	if old != e.state {
		r.emit(log.NewStateChange(log.StateEntityBinary, id.String(), old.String(), e.state.String(), ""))
	}
	return received, nil
}

// Await blocks until the upload id is complete and returns its bytes. A
// published binary that no download has started is returned at once. The
// binary is consumed: later operations on id fail with ErrBinaryUnknown.
//
// A non-empty owner must match the parameter the upload was created for,
// compared case-insensitively. Published binaries have no owner.
func (r *Registry) Await(ctx context.Context, id uuid.UUID, owner string) ([]byte, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if owner != "" && !strings.EqualFold(e.owner, owner) {
		return nil, ErrBinaryUnknown
	}

	if e.dir == Upload {
		select {
		case <-e.settled:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	if e.removed || (e.state != StateComplete && e.state != StateAvailable) {
		e.mu.Unlock()
		return nil, ErrBinaryUnknown
	}
	// Claim the data so a concurrent Await cannot consume it twice.
	data := e.data
	e.removed = true
	e.mu.Unlock()

	r.remove(id, "consumed")
	return data, nil
}

// Publish stores data for download.
func (r *Registry) Publish(_ context.Context, data []byte) (uuid.UUID, error) {
	if r.config.MaxTotalSize > 0 && uint64(len(data)) > r.config.MaxTotalSize {
		return uuid.Nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidSize, len(data), r.config.MaxTotalSize)
	}
	e := &entry{
		id:      uuid.New(),
		dir:     Download,
		state:   StateAvailable,
		total:   uint64(len(data)),
		data:    data,
		settled: make(chan struct{}),
	}
	r.insert(e)
	return e.id, nil
}

// CreateDownload returns the size of a published binary and restarts its
// lifetime.
func (r *Registry) CreateDownload(id uuid.UUID) (Info, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Info{}, err
	}
	if e.dir != Download {
		return Info{}, ErrBinaryUnknown
	}
	_ = r.timers.Touch(id)
	return r.snapshot(e), nil
}

// GetChunk serves up to length bytes at offset. Chunks are served in
// order: offset must equal the number of bytes served so far. The binary is
// removed after its last byte has been served.
func (r *Registry) GetChunk(id uuid.UUID, offset uint64, length int) ([]byte, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()

	if e.removed || e.dir != Download {
		e.mu.Unlock()
		return nil, ErrBinaryUnknown
	}
	switch {
	case offset != e.pos:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: offset %d, expected %d", ErrInvalidChunkIndex, offset, e.pos)
	case length <= 0:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: empty chunk", ErrInvalidChunkIndex)
	case length > r.config.MaxChunkSize:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, length, r.config.MaxChunkSize)
	case offset >= e.total:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: offset %d beyond size %d", ErrInvalidChunkIndex, offset, e.total)
	}

	end := min(offset+uint64(length), e.total)
	chunk := make([]byte, end-offset)
	copy(chunk, e.data[offset:end])

	started := e.state == StateAvailable
	e.pos = end
	e.state = StateDownloading
	done := e.pos == e.total
	e.mu.Unlock()

	r.emit(log.NewTransfer(log.DirectionOut, id.String(), offset, len(chunk), e.total))
	if r.config.Observer != nil {
		r.config.Observer.ChunkTransferred(Download, len(chunk))
	}

	if done {
		r.remove(id, "consumed")
		return chunk, nil
	}
	if started {
		r.emit(log.NewStateChange(log.StateEntityBinary, id.String(),
			StateAvailable.String(), StateDownloading.String(), ""))
	}
	_ = r.timers.Touch(id)
	return chunk, nil
}

// Delete removes a binary before its lifetime ends.
func (r *Registry) Delete(id uuid.UUID) error {
	if !r.remove(id, "deleted") {
		return ErrBinaryUnknown
	}
	return nil
}

// Info returns a snapshot of a binary.
func (r *Registry) Info(id uuid.UUID) (Info, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return r.snapshot(e), nil
}

func (r *Registry) insert(e *entry) {
	r.mu.Lock()
	r.entries[e.id] = e
	r.mu.Unlock()

	_ = r.timers.Set(e.id, r.config.IdleTimeout)

	if r.config.Logger != nil {
		r.config.Logger.Debug("binary created",
			"id", e.id, "direction", e.dir, "size", e.total, "owner", e.owner)
	}
	r.emit(log.NewStateChange(log.StateEntityBinary, e.id.String(), "", e.state.String(), e.dir.String()))
	if r.config.Observer != nil {
		r.config.Observer.BinaryCreated(e.dir)
	}
}

func (r *Registry) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBinaryUnknown, id)
	}
	return e, nil
}

// remove deletes id and reports whether it was present.
func (r *Registry) remove(id uuid.UUID, reason string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	_ = r.timers.Cancel(id)

	e.mu.Lock()
	e.removed = true
	old := e.state
	e.data = nil
	e.mu.Unlock()
	e.settle()

	if r.config.Logger != nil {
		r.config.Logger.Debug("binary removed", "id", id, "direction", e.dir, "reason", reason)
	}
	r.emit(log.NewStateChange(log.StateEntityBinary, id.String(), old.String(), "removed", reason))
	if r.config.Observer != nil {
		r.config.Observer.BinaryRemoved(e.dir, reason)
	}
	return true
}

// snapshot must not be called with e.mu held.
func (r *Registry) snapshot(e *entry) Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := Info{
		ID:         e.id,
		Direction:  e.dir,
		State:      e.state,
		Owner:      e.owner,
		TotalSize:  e.total,
		ChunkCount: e.chunkCount,
	}
	if e.dir == Upload {
		info.Transferred = uint64(len(e.data))
	} else {
		info.Transferred = e.pos
	}
	info.Lifetime, _ = r.timers.Remaining(e.id)
	return info
}

func (r *Registry) emit(event log.Event) {
	if r.config.ProtocolLogger != nil {
		r.config.ProtocolLogger.Log(event)
	}
}

// initialCap avoids trusting a huge declared size for the first allocation.
func initialCap(total uint64) int {
	const limit = 16 << 20
	if total > limit {
		return limit
	}
	return int(total)
}
