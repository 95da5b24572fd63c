package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/discovery"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/metrics"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

// Server serves a set of features over the framed transport.
type Server struct {
	mu     sync.RWMutex
	config Config
	state  ServiceState
	logger *slog.Logger

	core        *core.Service
	registry    *model.Registry
	binaries    *binary.Registry
	engine      *execution.Engine
	interaction *interaction.Server
	metrics     *metrics.Collector

	transport  *transport.Server
	advertiser discovery.Advertiser

	connsMu sync.Mutex
	conns   map[*transport.ServerConn]*connection

	eventHandlers []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a server from the SiLAService feature and the given
// features. It fails if the feature definitions do not resolve or a handler
// is registered twice or for an unknown node.
func New(config Config, features ...Feature) (*Server, error) {
	collector, err := metrics.New(config.Registerer)
	if err != nil {
		return nil, err
	}

	svc := core.New(config.Info)
	config.Info = svc.Info()

	b := model.NewBuilder()
	svc.Register(b)
	for _, f := range features {
		f.Register(b)
	}
	reg, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	svc.Attach(reg)

	bcfg := config.Binaries
	if bcfg.Logger == nil {
		bcfg.Logger = config.Logger
	}
	if bcfg.ProtocolLogger == nil {
		bcfg.ProtocolLogger = config.ProtocolLogger
	}
	bcfg.Observer = collector
	binaries := binary.NewRegistry(bcfg)

	codec := datatype.NewCodec(binaries)

	ecfg := config.Engine
	if ecfg.Logger == nil {
		ecfg.Logger = config.Logger
	}
	if ecfg.ProtocolLogger == nil {
		ecfg.ProtocolLogger = config.ProtocolLogger
	}
	ecfg.Observer = collector
	engine := execution.NewEngine(ecfg, codec)

	icfg := config.Interaction
	if icfg.Logger == nil {
		icfg.Logger = config.Logger
	}
	if icfg.ProtocolLogger == nil {
		icfg.ProtocolLogger = config.ProtocolLogger
	}
	icfg.Observer = collector

	s := &Server{
		config:      config,
		logger:      config.Logger,
		core:        svc,
		registry:    reg,
		binaries:    binaries,
		engine:      engine,
		interaction: interaction.NewServer(icfg, reg, engine, binaries, codec),
		metrics:     collector,
		conns:       make(map[*transport.ServerConn]*connection),
	}
	svc.OnRename(s.handleRename)
	return s, nil
}

// Core returns the SiLAService feature of the server.
func (s *Server) Core() *core.Service {
	return s.core
}

// Registry returns the feature registry the server dispatches to.
func (s *Server) Registry() *model.Registry {
	return s.registry
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// State returns the current service state.
func (s *Server) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnEvent registers a handler for server events.
func (s *Server) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// SetAdvertiser replaces the mDNS advertiser used when discovery is
// enabled. It must be called before Start.
func (s *Server) SetAdvertiser(advertiser discovery.Advertiser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertiser = advertiser
}

// Start begins accepting connections and, if enabled, advertises the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateStopping, StateStopped:
		s.mu.Unlock()
		return ErrStopped
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	ts, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      s.config.TLS,
		Address:        s.config.Address,
		MaxMessageSize: s.config.MaxMessageSize,
		Logger:         s.config.ProtocolLogger,
		OnConnect:      s.handleConnect,
		OnDisconnect:   s.handleDisconnect,
		OnMessage:      s.handleMessage,
		OnError:        s.handleTransportError,
	})
	if err == nil {
		err = ts.Start(s.ctx)
	}
	if err != nil {
		s.cancel()
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("start transport: %w", err)
	}

	s.mu.Lock()
	s.transport = ts
	if s.config.Discovery && s.advertiser == nil {
		s.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: s.config.DiscoveryInterface,
			TTL:       discovery.DefaultAdvertiserConfig().TTL,
		})
	}
	advertiser := s.advertiser
	s.state = StateRunning
	s.mu.Unlock()

	if s.config.Discovery && advertiser != nil {
		if err := advertiser.Advertise(s.ctx, s.serverInfo()); err != nil {
			s.logWarn("mDNS advertising failed", slog.String("error", err.Error()))
		}
	}

	s.debugLog("server started",
		slog.String("address", ts.Addr().String()),
		slog.Bool("tls", ts.Secure()),
		slog.String("uuid", s.config.Info.UUID.String()))
	return nil
}

// Stop withdraws the advertisement, closes all connections and ends all
// executions and transfers.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	advertiser := s.advertiser
	ts := s.transport
	s.mu.Unlock()

	if s.config.Discovery && advertiser != nil {
		if err := advertiser.Stop(); err != nil {
			s.debugLog("stop advertising", slog.String("error", err.Error()))
		}
	}

	// Stopping the transport runs handleDisconnect for every connection.
	err := ts.Stop()
	s.cancel()
	s.wg.Wait()
	s.engine.Close()
	s.binaries.Close()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.debugLog("server stopped")
	return err
}

// Addr returns the listen address, or nil if the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.Addr()
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) handleConnect(conn *transport.ServerConn) {
	c := newConnection(s, conn)

	s.connsMu.Lock()
	s.conns[conn] = c
	s.connsMu.Unlock()

	s.metrics.ConnectionOpened()
	s.debugLog("client connected", slog.String("remote", conn.RemoteAddr().String()))
	s.emitEvent(Event{Type: EventConnected, RemoteAddr: conn.RemoteAddr().String()})
}

func (s *Server) handleDisconnect(conn *transport.ServerConn) {
	s.connsMu.Lock()
	c, ok := s.conns[conn]
	delete(s.conns, conn)
	s.connsMu.Unlock()
	if !ok {
		return
	}

	c.close()
	s.metrics.ConnectionClosed()
	s.debugLog("client disconnected", slog.String("remote", conn.RemoteAddr().String()))
	s.emitEvent(Event{Type: EventDisconnected, RemoteAddr: conn.RemoteAddr().String()})
}

func (s *Server) handleMessage(conn *transport.ServerConn, msg []byte) {
	s.connsMu.Lock()
	c, ok := s.conns[conn]
	s.connsMu.Unlock()
	if !ok {
		return
	}
	c.handleFrame(msg)
}

func (s *Server) handleTransportError(conn *transport.ServerConn, err error) {
	remote := ""
	if conn != nil {
		remote = conn.RemoteAddr().String()
	}
	s.debugLog("transport error", slog.String("remote", remote), slog.String("error", err.Error()))
}

// handleRename republishes the TXT records after SetServerName.
func (s *Server) handleRename(name string) {
	s.mu.RLock()
	advertiser := s.advertiser
	running := s.state == StateRunning
	s.mu.RUnlock()

	if running && s.config.Discovery && advertiser != nil {
		if err := advertiser.Update(s.serverInfo()); err != nil {
			s.logWarn("mDNS update failed", slog.String("error", err.Error()))
		}
	}
	s.emitEvent(Event{Type: EventRenamed, Name: name})
}

// serverInfo builds the announcement of the running server.
func (s *Server) serverInfo() *discovery.ServerInfo {
	info := s.core.Info()
	var port uint16
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = uint16(addr.Port)
	}
	return &discovery.ServerInfo{
		UUID:        info.UUID.String(),
		Name:        info.Name,
		Type:        info.Type,
		Version:     info.Version,
		Description: info.Description,
		Secure:      s.config.TLS != nil,
		Port:        port,
	}
}

func (s *Server) emitEvent(event Event) {
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()
	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
