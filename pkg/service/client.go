package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/sila-protocol/sila-go/pkg/discovery"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/transport"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Client is a connection to a server. It embeds the interaction client, so
// all request methods are available directly.
type Client struct {
	*interaction.Client

	conn   *transport.ClientConn
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the server at address.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	tc, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      config.TLS,
		MaxMessageSize: config.MaxMessageSize,
		ConnectTimeout: config.ConnectTimeout,
		Logger:         config.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	conn, err := tc.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Client: interaction.NewClient(conn),
		conn:   conn,
		logger: config.Logger,
		done:   make(chan struct{}),
	}
	if config.RequestTimeout > 0 {
		c.SetTimeout(config.RequestTimeout)
	}
	go c.readLoop()
	return c, nil
}

// DialService connects to a server found by discovery. Addresses are tried
// in order. A server that announces TLS is dialed with config.TLS, which
// must then be set.
func DialService(ctx context.Context, svc *discovery.ServerService, config ClientConfig) (*Client, error) {
	if svc.Secure && config.TLS == nil {
		return nil, fmt.Errorf("%w: server %s requires TLS", ErrInvalidConfig, svc.UUID)
	}
	if !svc.Secure {
		config.TLS = nil
	}
	port := int(svc.Port)
	if port == 0 {
		port = discovery.DefaultPort
	}

	var errs []error
	for _, addr := range svc.Addresses {
		c, err := Dial(ctx, net.JoinHostPort(addr, strconv.Itoa(port)), config)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: server %s", ErrNoAddress, svc.UUID)
	}
	return nil, errors.Join(errs...)
}

// Secure reports whether the connection is TLS protected.
func (c *Client) Secure() bool {
	return c.conn.Secure()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, or nil after Close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the connection and ends all pending requests and streams.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// readLoop routes frames from the server to the interaction client.
func (c *Client) readLoop() {
	var err error
	defer func() {
		c.closeOnce.Do(func() {
			if !errors.Is(err, transport.ErrConnectionClosed) {
				c.err = err
			}
			_ = c.Client.Close()
			_ = c.conn.Close()
			close(c.done)
		})
	}()

	for {
		var data []byte
		data, err = c.conn.Receive(0)
		if err != nil {
			return
		}

		typ, perr := wire.PeekMessageType(data)
		if perr != nil {
			c.debugLog("dropping undecodable frame", slog.String("error", perr.Error()))
			continue
		}

		switch typ {
		case wire.MessageTypeResponse:
			resp, derr := wire.DecodeResponse(data)
			if derr != nil {
				c.debugLog("failed to decode response", slog.String("error", derr.Error()))
				continue
			}
			if herr := c.HandleResponse(resp); herr != nil {
				c.debugLog("unmatched response",
					slog.Uint64("messageID", uint64(resp.MessageID)),
					slog.String("error", herr.Error()))
			}
		case wire.MessageTypeNotification:
			notif, derr := wire.DecodeNotification(data)
			if derr != nil {
				c.debugLog("failed to decode notification", slog.String("error", derr.Error()))
				continue
			}
			c.HandleNotification(notif)
		}
	}
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
