package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/transport"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// connection binds one transport connection to an interaction session.
// Requests run concurrently: a handler may block on an upload that later
// requests on the same connection complete.
type connection struct {
	server  *Server
	conn    *transport.ServerConn
	session *interaction.Session

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newConnection(s *Server, conn *transport.ServerConn) *connection {
	ctx, cancel := context.WithCancel(s.ctx)
	c := &connection{
		server: s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	c.session = s.interaction.NewSession(c.sendNotification)
	return c
}

// handleFrame decodes a request frame and answers it in its own goroutine.
func (c *connection) handleFrame(msg []byte) {
	req, err := wire.DecodeRequest(msg)
	if err != nil {
		c.rejectFrame(msg, err)
		return
	}

	c.server.wg.Add(1)
	go func() {
		defer c.server.wg.Done()
		resp := c.session.HandleRequest(c.ctx, req)
		c.send(resp)
	}()
}

// rejectFrame answers an undecodable request if its message ID can be
// recovered, and drops it otherwise.
func (c *connection) rejectFrame(msg []byte, err error) {
	var peek struct {
		MessageID uint32 `cbor:"1,keyasint"`
	}
	if wire.Unmarshal(msg, &peek) != nil || peek.MessageID == wire.NotificationMessageID {
		c.server.debugLog("dropping undecodable frame",
			slog.String("remote", c.conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
		return
	}
	c.send(&wire.Response{
		MessageID: peek.MessageID,
		Status:    wire.StatusDecodeError,
		Error:     &wire.ErrorPayload{Message: err.Error()},
	})
}

func (c *connection) send(resp *wire.Response) {
	data, err := wire.EncodeResponse(resp)
	if err == nil {
		err = c.conn.Send(data)
	}
	if err != nil {
		c.server.debugLog("failed to send response",
			slog.Uint64("messageID", uint64(resp.MessageID)),
			slog.String("error", err.Error()))
	}
}

func (c *connection) sendNotification(notif *wire.Notification) {
	data, err := wire.EncodeNotification(notif)
	if err != nil {
		c.server.debugLog("failed to encode notification",
			slog.Uint64("subscriptionID", uint64(notif.SubscriptionID)),
			slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Send(data); err != nil {
		c.server.debugLog("failed to send notification",
			slog.Uint64("subscriptionID", uint64(notif.SubscriptionID)),
			slog.String("error", fmt.Sprint(err)))
	}
}

// close ends the session's subscriptions and cancels in-flight requests.
// Observable command executions keep running; another connection may
// still follow them.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.session.Close()
	})
}
