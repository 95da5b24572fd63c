package interactive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sila-protocol/sila-go/pkg/connection"
	"github.com/sila-protocol/sila-go/pkg/discovery"
	"github.com/sila-protocol/sila-go/pkg/inspect"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/service"
)

// Config configures the client console.
type Config struct {
	// Client configures every connection.
	Client service.ClientConfig

	// Connection configures reconnection.
	Connection connection.Config

	// Browser finds servers on the local network.
	Browser discovery.Browser

	// BrowseTimeout bounds the discover command.
	BrowseTimeout time.Duration

	// Logger receives connection events. Nil disables logging.
	Logger *slog.Logger
}

// session is the connection to one server. The feature registry is fetched
// again after every reconnect, since the server may have been restarted
// with other features.
type session struct {
	target  string
	manager *connection.Manager[*service.Client]

	mu       sync.RWMutex
	registry *model.Registry
}

func newSession(target string, config Config) *session {
	s := &session{target: target}
	s.manager = connection.NewManager(dialer(target, config), config.Connection)
	s.manager.OnConnected(func(client *service.Client) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reg, err := inspect.NewRemoteInspector(client).FetchRegistry(ctx)
		if err != nil {
			if config.Logger != nil {
				config.Logger.Warn("failed to fetch feature definitions", "server", target, "error", err)
			}
			return
		}
		s.mu.Lock()
		s.registry = reg
		s.mu.Unlock()
	})
	return s
}

// dialer connects to an address, or to a server UUID found by discovery.
func dialer(target string, config Config) connection.DialFunc[*service.Client] {
	return func(ctx context.Context) (*service.Client, error) {
		if _, err := uuid.Parse(target); err != nil {
			return service.Dial(ctx, target, config.Client)
		}
		if config.Browser == nil {
			return nil, fmt.Errorf("discovery is disabled, cannot find server %s", target)
		}
		svc, err := config.Browser.FindByUUID(ctx, target)
		if err != nil {
			return nil, err
		}
		return service.DialService(ctx, svc, config.Client)
	}
}

func (s *session) client() (*service.Client, error) {
	return s.manager.Conn()
}

func (s *session) features() (*model.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return nil, fmt.Errorf("feature definitions of %s are not available", s.target)
	}
	return s.registry, nil
}
