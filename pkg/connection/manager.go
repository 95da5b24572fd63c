package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a connection the manager can watch. service.Client implements it.
type Conn interface {
	// Done is closed when the connection ends.
	Done() <-chan struct{}

	// Err returns the error that ended the connection.
	Err() error

	Close() error
}

// DialFunc establishes a connection.
type DialFunc[C Conn] func(ctx context.Context) (C, error)

// Config configures a Manager.
type Config struct {
	Backoff BackoffConfig

	// AutoReconnect dials again when an established connection drops.
	AutoReconnect bool

	// DialTimeout bounds each reconnection attempt.
	DialTimeout time.Duration

	// Logger receives reconnection diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:       DefaultBackoffConfig(),
		AutoReconnect: true,
		DialTimeout:   10 * time.Second,
	}
}

// Manager manages a connection with automatic reconnection.
type Manager[C Conn] struct {
	mu sync.RWMutex

	state   State
	conn    C
	hasConn bool

	// generation identifies the current connection; watchers of older
	// connections ignore their drop.
	generation uint64

	dial    DialFunc[C]
	backoff *Backoff
	config  Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onStateChange  func(oldState, newState State)
	onConnected    func(conn C)
	onDisconnected func(err error)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a new connection manager. Nothing is dialed until
// Connect.
func NewManager[C Conn](dial DialFunc[C], config Config) *Manager[C] {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultConfig().DialTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager[C]{
		state:   StateDisconnected,
		dial:    dial,
		backoff: NewBackoff(config.Backoff),
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection state.
func (m *Manager[C]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Conn returns the current connection.
func (m *Manager[C]) Conn() (C, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || !m.hasConn {
		var zero C
		return zero, ErrNotConnected
	}
	return m.conn, nil
}

// Attempts returns the number of reconnection attempts since the last
// successful connection.
func (m *Manager[C]) Attempts() int {
	return m.backoff.Attempts()
}

// Connect dials the server. A failed first dial is returned to the caller
// and not retried.
func (m *Manager[C]) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case StateConnecting, StateConnected, StateReconnecting:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	old := m.setState(StateConnecting)
	m.mu.Unlock()
	m.notify(old, StateConnecting)

	conn, err := m.dial(ctx)

	m.mu.Lock()
	if m.state != StateConnecting {
		// Closed or disconnected while dialing.
		closed := m.state == StateClosed
		m.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		if closed {
			return ErrManagerClosed
		}
		return ErrNotConnected
	}
	if err != nil {
		m.setState(StateDisconnected)
		m.mu.Unlock()
		m.notify(StateConnecting, StateDisconnected)
		return err
	}
	m.attach(conn)
	m.mu.Unlock()

	m.connected(StateConnecting, conn)
	return nil
}

// Disconnect closes the connection without reconnecting. Connect may be
// called again afterwards.
func (m *Manager[C]) Disconnect() error {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	conn, had := m.detach()
	old := m.setState(StateDisconnected)
	m.mu.Unlock()

	m.notify(old, StateDisconnected)
	if had {
		return conn.Close()
	}
	return nil
}

// Close shuts down the manager and its connection.
func (m *Manager[C]) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	conn, had := m.detach()
	old := m.setState(StateClosed)
	m.mu.Unlock()

	m.notify(old, StateClosed)
	m.cancel()

	var err error
	if had {
		err = conn.Close()
	}
	m.wg.Wait()
	return err
}

// setState must be called with mu held. It returns the previous state.
func (m *Manager[C]) setState(s State) State {
	old := m.state
	m.state = s
	return old
}

// attach installs conn as the current connection and starts watching it.
// It must be called with mu held.
func (m *Manager[C]) attach(conn C) {
	m.conn = conn
	m.hasConn = true
	m.generation++
	m.state = StateConnected
	m.backoff.Reset()

	m.wg.Add(1)
	go m.watch(conn, m.generation)
}

// detach removes the current connection. It must be called with mu held.
func (m *Manager[C]) detach() (C, bool) {
	conn, had := m.conn, m.hasConn
	var zero C
	m.conn = zero
	m.hasConn = false
	m.generation++
	return conn, had
}

// watch waits for conn to drop and reconnects if configured.
func (m *Manager[C]) watch(conn C, generation uint64) {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-conn.Done():
	}

	m.mu.Lock()
	if m.generation != generation || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.detach()
	next := StateDisconnected
	if m.config.AutoReconnect {
		next = StateReconnecting
	}
	m.setState(next)
	onDisconnected := m.onDisconnected
	m.mu.Unlock()

	m.notify(StateConnected, next)
	if onDisconnected != nil {
		onDisconnected(conn.Err())
	}
	if next == StateReconnecting {
		m.reconnect()
	}
}

// reconnect dials with backoff until it succeeds, the manager is closed
// or Disconnect is called.
func (m *Manager[C]) reconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.mu.RLock()
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()
		if onReconnecting != nil {
			onReconnecting(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.config.DialTimeout)
		conn, err := m.dial(ctx)
		cancel()
		if err != nil {
			if m.config.Logger != nil {
				m.config.Logger.Debug("reconnect failed", "attempt", attempt, "error", err)
			}
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.attach(conn)
		m.mu.Unlock()

		if m.config.Logger != nil {
			m.config.Logger.Info("reconnected", "attempts", attempt)
		}
		m.connected(StateReconnecting, conn)
		return
	}
}

func (m *Manager[C]) connected(old State, conn C) {
	m.notify(old, StateConnected)
	m.mu.RLock()
	fn := m.onConnected
	m.mu.RUnlock()
	if fn != nil {
		fn(conn)
	}
}

func (m *Manager[C]) notify(oldState, newState State) {
	if oldState == newState {
		return
	}
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager[C]) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for every established connection, including
// reconnections.
func (m *Manager[C]) OnConnected(fn func(conn C)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for a dropped connection. It receives the
// error that ended the connection.
func (m *Manager[C]) OnDisconnected(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (m *Manager[C]) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}
