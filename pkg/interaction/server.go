package interaction

import (
	"log/slog"
	"time"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// NotificationHandler is called when a notification needs to be sent.
type NotificationHandler func(notif *wire.Notification)

// Observer receives request events, e.g. for metrics.
type Observer interface {
	RequestHandled(op wire.Operation, status wire.Status, elapsed time.Duration)
}

// Config configures a Server.
type Config struct {
	// PollInterval is how often observable properties without a change
	// stream are read for changes.
	PollInterval time.Duration

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives subscription state changes. Nil disables.
	ProtocolLogger log.Logger

	// Observer receives request events. Nil disables.
	Observer Observer
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second}
}

// Server dispatches requests to the feature model, the execution engine and
// the binary registry. Connection-scoped state lives in Sessions.
type Server struct {
	config   Config
	registry *model.Registry
	engine   *execution.Engine
	binaries *binary.Registry
	codec    *datatype.Codec
}

// NewServer creates a server. The codec must resolve binary references
// against binaries.
func NewServer(config Config, reg *model.Registry, engine *execution.Engine, binaries *binary.Registry, codec *datatype.Codec) *Server {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	return &Server{
		config:   config,
		registry: reg,
		engine:   engine,
		binaries: binaries,
		codec:    codec,
	}
}

// Registry returns the feature registry the server dispatches to.
func (s *Server) Registry() *model.Registry {
	return s.registry
}

// NewSession creates the request handler of one connection. Notifications of
// its subscriptions go to notify.
func (s *Server) NewSession(notify NotificationHandler) *Session {
	return newSession(s, notify)
}
