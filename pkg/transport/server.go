package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/log"
)

// Connection states reported in log events.
const (
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
)

// ServerConfig configures a server.
type ServerConfig struct {
	// TLSConfig contains TLS settings. Nil selects plain TCP.
	TLSConfig *TLSConfig

	// Address to listen on (e.g., ":50052" or "127.0.0.1:50052").
	Address string

	// MaxMessageSize is the maximum message size (default: 4 MiB).
	MaxMessageSize uint32

	// KeepAlive is the TCP keep-alive period (default: 15s, negative disables).
	KeepAlive time.Duration

	// HandshakeTimeout bounds the TLS handshake (default: 10s).
	HandshakeTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every received frame, from the connection's
	// read goroutine.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called when an error occurs. conn is nil for errors that
	// happen before a connection is established.
	OnError func(conn *ServerConn, err error)
}

// Server accepts client connections over TCP, optionally secured with TLS.
type Server struct {
	config   ServerConfig
	tlsConf  *tls.Config
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = DefaultKeepAlive
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	s := &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}
	if config.TLSConfig != nil {
		tlsConf, err := NewServerTLSConfig(config.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConf = tlsConf
	}
	return s, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	lc := net.ListenConfig{KeepAlive: s.config.KeepAlive}
	listener, err := lc.Listen(s.ctx, "tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	return nil
}

// Secure reports whether the server requires TLS.
func (s *Server) Secure() bool {
	return s.tlsConf != nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	conn, state, err := s.secure(raw)
	if err != nil {
		raw.Close()
		s.reportError(nil, err)
		return
	}

	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(conn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID)
	}

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		tlsState:   state,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: raw.RemoteAddr(),
		connID:     connID,
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	sconn.logState("", StateConnected)
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	sconn.logState(StateConnected, StateDisconnected)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// secure runs the TLS handshake when the server is configured for TLS.
func (s *Server) secure(raw net.Conn) (net.Conn, tls.ConnectionState, error) {
	if s.tlsConf == nil {
		return raw, tls.ConnectionState{}, nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	defer cancel()

	tlsConn := tls.Server(raw, s.tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, tls.ConnectionState{}, fmt.Errorf("TLS handshake failed: %w", err)
	}
	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		return nil, tls.ConnectionState{}, err
	}
	return tlsConn, state, nil
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

// ServerConn represents a client connection to the server.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	tlsState   tls.ConnectionState
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// TLSState returns the TLS connection state. It is zero on plain TCP.
func (c *ServerConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// Send sends a message to the client. Safe for concurrent use.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if !errors.Is(err, io.EOF) && c.server.running.Load() {
					c.server.reportError(c, err)
				}
			}
			return
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

func (c *ServerConn) logState(oldState, newState string) {
	logger := c.server.config.Logger
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		LocalRole:    log.RoleServer,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}
