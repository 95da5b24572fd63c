package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sila-protocol/sila-go/pkg/log"
)

// ErrConnectionClosed indicates an operation on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Default connection settings.
const (
	DefaultConnectTimeout = 30 * time.Second

	// DefaultKeepAlive is the TCP keep-alive period. Liveness detection is
	// left to the operating system since the protocol has no ping messages.
	DefaultKeepAlive = 15 * time.Second
)

// ClientConfig configures a client.
type ClientConfig struct {
	// TLSConfig contains TLS settings. Nil selects plain TCP.
	TLSConfig *TLSConfig

	// MaxMessageSize is the maximum message size (default: 4 MiB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// KeepAlive is the TCP keep-alive period (default: 15s, negative disables).
	KeepAlive time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Client dials servers.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = DefaultKeepAlive
	}

	c := &Client{config: config}
	if config.TLSConfig != nil {
		tlsConf, err := NewClientTLSConfig(config.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		c.tlsConf = tlsConf
	}
	return c, nil
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{KeepAlive: c.config.KeepAlive}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	conn := raw
	var state tls.ConnectionState
	if c.tlsConf != nil {
		tlsConn := tls.Client(raw, c.tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		state = tlsConn.ConnectionState()
		if err := VerifyConnection(state); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("connection verification failed: %w", err)
		}
		conn = tlsConn
	}

	framer := NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	if c.config.Logger != nil {
		framer.SetLogger(c.config.Logger, conn.LocalAddr().String())
	}

	return &ClientConn{
		conn:     conn,
		framer:   framer,
		tlsState: state,
		closeCh:  make(chan struct{}),
	}, nil
}

// ClientConn represents a connection from client to server.
type ClientConn struct {
	conn     net.Conn
	framer   *Framer
	tlsState tls.ConnectionState
	closeCh  chan struct{}

	closeOnce sync.Once
	readMu    sync.Mutex
}

// TLSState returns the TLS connection state. It is zero on plain TCP.
func (c *ClientConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// Secure reports whether the connection runs over TLS.
func (c *ClientConn) Secure() bool {
	return c.tlsState.HandshakeComplete
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends a message to the server.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive receives a message from the server. A zero timeout blocks until a
// frame arrives or the connection closes.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		select {
		case <-c.closeCh:
			return nil, ErrConnectionClosed
		default:
		}
	}
	return data, err
}

// Done is closed once Close has been called.
func (c *ClientConn) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
