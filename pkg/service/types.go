package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrStopped        = errors.New("service stopped")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNotConnected   = errors.New("not connected")
	ErrNoAddress      = errors.New("no usable address")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped. It cannot be restarted.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Feature is a feature implementation that registers its definition and
// handlers with a model builder.
type Feature interface {
	Register(b *model.Builder)
}

// Config configures a Server.
type Config struct {
	// Info identifies the server. A nil UUID is replaced by a random one.
	Info core.Info

	// Address is the address to listen on (e.g., ":50052").
	Address string

	// TLS secures connections. Nil serves plain TCP.
	TLS *transport.TLSConfig

	// MaxMessageSize bounds a single frame (default: 4 MiB).
	MaxMessageSize uint32

	// Discovery enables mDNS advertising of the server.
	Discovery bool

	// DiscoveryInterface restricts advertising to one network interface.
	DiscoveryInterface string

	// Engine configures command execution. Logging and observer fields
	// are filled in by the server.
	Engine execution.Config

	// Binaries configures binary transfer.
	Binaries binary.Config

	// Interaction configures request dispatch.
	Interaction interaction.Config

	// Registerer receives the server's metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events. Nil disables.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Info: core.Info{
			Name:    "SiLA Server",
			Type:    "SiLAServer",
			Version: "1.0",
		},
		Address:        ":50052",
		MaxMessageSize: transport.DefaultMaxMessageSize,
		Engine:         execution.DefaultConfig(),
		Binaries:       binary.DefaultConfig(),
		Interaction:    interaction.DefaultConfig(),
	}
}

// ClientConfig configures Dial.
type ClientConfig struct {
	// TLS secures the connection. Nil dials plain TCP.
	TLS *transport.TLSConfig

	// MaxMessageSize bounds a single frame (default: 4 MiB).
	MaxMessageSize uint32

	// ConnectTimeout bounds connection setup (default: 30s).
	ConnectTimeout time.Duration

	// RequestTimeout bounds a single request (default: 30s).
	RequestTimeout time.Duration

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives frame events. Nil disables.
	ProtocolLogger log.Logger
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxMessageSize: transport.DefaultMaxMessageSize,
		ConnectTimeout: transport.DefaultConnectTimeout,
		RequestTimeout: 30 * time.Second,
	}
}

// EventType identifies a server event.
type EventType uint8

const (
	// EventConnected - a client connected.
	EventConnected EventType = iota

	// EventDisconnected - a client disconnected.
	EventDisconnected

	// EventRenamed - the server name was changed.
	EventRenamed
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventRenamed:
		return "RENAMED"
	default:
		return "UNKNOWN"
	}
}

// Event is a server event.
type Event struct {
	// Type is the event type.
	Type EventType

	// RemoteAddr is the client address (for connection events).
	RemoteAddr string

	// Name is the new server name (for EventRenamed).
	Name string
}

// EventHandler is called for server events.
type EventHandler func(Event)
