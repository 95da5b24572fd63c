package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLost = errors.New("connection reset")

type fakeConn struct {
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) Err() error            { return errLost }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	c.drop()
	return nil
}

func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.done) })
}

// fakeDialer hands out connections and fails the attempts listed in fail
// (1-based).
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  map[int]bool
	conns []*fakeConn
}

func (d *fakeDialer) dial(ctx context.Context) (*fakeConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail[d.dials] {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Jitter: 0}
	return cfg
}

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff(DefaultBackoffConfig())

		expected := []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}
		for i, exp := range expected {
			assert.Equal(t, exp, b.Current(), "attempt %d", i)
			b.Next()
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff(DefaultBackoffConfig())
		for i := 0; i < 20; i++ {
			b.Reset()
			d := b.Next()
			assert.GreaterOrEqual(t, d, InitialBackoff)
			assert.LessOrEqual(t, d, InitialBackoff+InitialBackoff/4)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff(DefaultBackoffConfig())
		for i := 0; i < 5; i++ {
			b.Next()
		}
		assert.Equal(t, 5, b.Attempts())
		assert.Greater(t, b.Current(), InitialBackoff)

		b.Reset()
		assert.Equal(t, InitialBackoff, b.Current())
		assert.Zero(t, b.Attempts())
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			assert.Equal(t, exp, b.Next(), "attempt %d", i)
		}
	})

	t.Run("ZeroConfigUsesDefaults", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{})
		assert.Equal(t, InitialBackoff, b.Next())
		assert.Equal(t, time.Duration(float64(InitialBackoff)*BackoffMultiplier), b.Current())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "RECONNECTING", StateReconnecting.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestManagerConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		d := &fakeDialer{}
		m := NewManager(d.dial, fastConfig())
		defer m.Close()

		var connected atomic.Int32
		m.OnConnected(func(*fakeConn) { connected.Add(1) })

		assert.Equal(t, StateDisconnected, m.State())
		_, err := m.Conn()
		assert.ErrorIs(t, err, ErrNotConnected)

		require.NoError(t, m.Connect(context.Background()))
		assert.Equal(t, StateConnected, m.State())
		assert.Equal(t, int32(1), connected.Load())

		conn, err := m.Conn()
		require.NoError(t, err)
		assert.Same(t, d.conn(0), conn)

		assert.ErrorIs(t, m.Connect(context.Background()), ErrAlreadyConnected)
	})

	t.Run("Failure", func(t *testing.T) {
		d := &fakeDialer{fail: map[int]bool{1: true}}
		m := NewManager(d.dial, fastConfig())
		defer m.Close()

		assert.Error(t, m.Connect(context.Background()))
		assert.Equal(t, StateDisconnected, m.State())

		// A failed first dial is not retried.
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, d.count())

		require.NoError(t, m.Connect(context.Background()))
		assert.Equal(t, StateConnected, m.State())
	})

	t.Run("StateChanges", func(t *testing.T) {
		d := &fakeDialer{}
		m := NewManager(d.dial, fastConfig())

		var mu sync.Mutex
		var states []State
		m.OnStateChange(func(_, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		})

		require.NoError(t, m.Connect(context.Background()))
		require.NoError(t, m.Close())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []State{StateConnecting, StateConnected, StateClosed}, states)
	})
}

func TestManagerReconnect(t *testing.T) {
	d := &fakeDialer{fail: map[int]bool{2: true, 3: true}}
	m := NewManager(d.dial, fastConfig())
	defer m.Close()

	var mu sync.Mutex
	var attempts []int
	var lostErr error
	m.OnReconnecting(func(attempt int, _ time.Duration) {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
	})
	m.OnDisconnected(func(err error) {
		mu.Lock()
		lostErr = err
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background()))
	first := d.conn(0)

	first.drop()

	require.Eventually(t, func() bool {
		return m.State() == StateConnected && d.count() == 4
	}, time.Second, time.Millisecond)

	conn, err := m.Conn()
	require.NoError(t, err)
	assert.NotSame(t, first, conn)
	assert.Zero(t, m.Attempts(), "backoff resets after reconnecting")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.ErrorIs(t, lostErr, errLost)
}

func TestManagerNoAutoReconnect(t *testing.T) {
	d := &fakeDialer{}
	cfg := fastConfig()
	cfg.AutoReconnect = false
	m := NewManager(d.dial, cfg)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	d.conn(0).drop()

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.count())
}

func TestManagerDisconnect(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial, fastConfig())
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect())

	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, d.conn(0).closed.Load())

	// Closing the connection deliberately does not reconnect.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.count())
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerClose(t *testing.T) {
	t.Run("ClosesConnection", func(t *testing.T) {
		d := &fakeDialer{}
		m := NewManager(d.dial, fastConfig())

		require.NoError(t, m.Connect(context.Background()))
		require.NoError(t, m.Close())

		assert.Equal(t, StateClosed, m.State())
		assert.True(t, d.conn(0).closed.Load())
		assert.ErrorIs(t, m.Connect(context.Background()), ErrManagerClosed)
		assert.NoError(t, m.Close())
	})

	t.Run("StopsReconnecting", func(t *testing.T) {
		fail := make(map[int]bool)
		for i := 2; i < 10000; i++ {
			fail[i] = true
		}
		d := &fakeDialer{fail: fail}
		m := NewManager(d.dial, fastConfig())

		require.NoError(t, m.Connect(context.Background()))
		d.conn(0).drop()

		require.Eventually(t, func() bool { return d.count() > 2 }, time.Second, time.Millisecond)

		done := make(chan struct{})
		go func() {
			_ = m.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Close() did not stop the reconnect loop")
		}
		assert.Equal(t, StateClosed, m.State())
	})
}
