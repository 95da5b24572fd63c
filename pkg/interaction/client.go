package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout     = errors.New("request timed out")
	ErrClientClosed       = errors.New("client is closed")
	ErrUnexpectedReply    = errors.New("unexpected reply")
	ErrSubscriptionFailed = errors.New("subscription failed")
)

// DefaultChunkSize is the upload chunk size used when none is given.
const DefaultChunkSize = 64 << 10

const (
	// streamBuffer bounds undelivered notifications per stream. When full,
	// the oldest is dropped.
	streamBuffer = 64

	// maxOrphans bounds notifications kept for subscriptions whose
	// subscribe response has not arrived yet.
	maxOrphans = 64
)

// RequestSender is the interface for sending requests over a connection.
type RequestSender interface {
	// Send sends an encoded request.
	Send(data []byte) error
}

// CallOption configures a single request.
type CallOption func(*wire.Request)

// WithMetadata attaches metadata to a request.
func WithMetadata(id fqi.FQI, v wire.Value) CallOption {
	return func(req *wire.Request) {
		if req.Metadata == nil {
			req.Metadata = make(map[string]wire.Value)
		}
		req.Metadata[id.String()] = v
	}
}

// Client provides a high-level API for making SiLA requests.
type Client struct {
	mu sync.RWMutex

	sender  RequestSender
	timeout time.Duration

	// Message ID generator
	nextMsgID uint32

	// Pending requests awaiting responses
	pending   map[uint32]chan *wire.Response
	pendingMu sync.RWMutex

	// Subscription streams by ID, and notifications that arrived before
	// their subscribe response
	streamsMu   sync.Mutex
	streams     map[uint32]router
	orphans     map[uint32][]*wire.Notification
	orphanCount int

	// Notification handler
	notifyHandler func(*wire.Notification)

	closed bool
}

// NewClient creates a new interaction client.
func NewClient(sender RequestSender) *Client {
	return &Client{
		sender:  sender,
		timeout: 30 * time.Second,
		pending: make(map[uint32]chan *wire.Response),
		streams: make(map[uint32]router),
		orphans: make(map[uint32][]*wire.Notification),
	}
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// SetNotificationHandler sets a handler that sees every incoming
// notification, in addition to the subscription streams.
func (c *Client) SetNotificationHandler(handler func(*wire.Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyHandler = handler
}

// Close closes the client and ends all streams.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	// Cancel all pending requests
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *wire.Response)
	c.pendingMu.Unlock()

	c.streamsMu.Lock()
	for id, r := range c.streams {
		r.end(ErrClientClosed)
		delete(c.streams, id)
	}
	c.orphans = make(map[uint32][]*wire.Notification)
	c.orphanCount = 0
	c.streamsMu.Unlock()

	return nil
}

// nextMessageID generates the next unique message ID.
func (c *Client) nextMessageID() uint32 {
	return atomic.AddUint32(&c.nextMsgID, 1)
}

// sendRequest sends a request and waits for the response.
func (c *Client) sendRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	c.mu.RUnlock()

	// Create response channel
	respCh := make(chan *wire.Response, 1)

	c.pendingMu.Lock()
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	// Encode and send request
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	if err := c.sender.Send(data); err != nil {
		return nil, err
	}

	// Wait for response with timeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClientClosed
		}
		return resp, nil
	}
}

// call builds, sends and checks a request, and decodes the response payload
// into out when out is not nil.
func (c *Client) call(ctx context.Context, op wire.Operation, target string, payload, out any, opts []CallOption) error {
	req, err := wire.NewRequest(c.nextMessageID(), op, target, payload)
	if err != nil {
		return err
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp.Status, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodePayload(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	return nil
}

// HandleResponse should be called when a response is received.
func (c *Client) HandleResponse(resp *wire.Response) error {
	c.pendingMu.RLock()
	ch, exists := c.pending[resp.MessageID]
	c.pendingMu.RUnlock()

	if !exists {
		return ErrUnexpectedReply
	}

	select {
	case ch <- resp:
	default:
		// Channel full or closed
	}
	return nil
}

// HandleNotification should be called when a notification is received.
func (c *Client) HandleNotification(notif *wire.Notification) {
	c.mu.RLock()
	handler := c.notifyHandler
	c.mu.RUnlock()

	if handler != nil {
		handler(notif)
	}

	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	c.route(notif)
}

// route delivers a notification to its stream, or keeps it until the
// stream is registered. Callers hold streamsMu.
func (c *Client) route(notif *wire.Notification) {
	r, ok := c.streams[notif.SubscriptionID]
	if !ok {
		if c.orphanCount >= maxOrphans {
			return
		}
		c.orphans[notif.SubscriptionID] = append(c.orphans[notif.SubscriptionID], notif)
		c.orphanCount++
		return
	}
	if r.deliver(notif) {
		delete(c.streams, notif.SubscriptionID)
	}
}

// register adds a stream and replays the notifications that arrived before
// it.
func (c *Client) register(id uint32, r router) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	c.streams[id] = r
	early := c.orphans[id]
	delete(c.orphans, id)
	c.orphanCount -= len(early)
	for _, n := range early {
		c.route(n)
	}
}

// router receives the notifications of one subscription.
type router interface {
	// deliver handles a notification and reports whether it was final.
	deliver(n *wire.Notification) bool

	// end closes the stream with err.
	end(err error)
}

// Stream is the client side of a subscription. Values are buffered; when
// the reader falls behind, the oldest undelivered value is dropped.
type Stream[T any] struct {
	// ID is the subscription ID assigned by the server.
	ID uint32

	client *Client
	values chan T

	mu   sync.Mutex
	err  error
	done bool
}

func newStream[T any](c *Client, id uint32) *Stream[T] {
	return &Stream[T]{ID: id, client: c, values: make(chan T, streamBuffer)}
}

// Values returns the stream's values. The channel is closed when the
// subscription ends.
func (s *Stream[T]) Values() <-chan T {
	return s.values
}

// Err returns why the stream ended, once Values is closed. It is nil when
// the subscription ended normally.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. Values is closed when the server's final
// notification arrives.
func (s *Stream[T]) Close(ctx context.Context) error {
	return s.client.Unsubscribe(ctx, s.ID)
}

func (s *Stream[T]) deliver(n *wire.Notification) bool {
	if len(n.Payload) > 0 {
		var v T
		if err := n.DecodePayload(&v); err != nil {
			s.end(fmt.Errorf("%w: %v", ErrUnexpectedReply, err))
			return true
		}
		s.push(v)
	}
	if !n.Final {
		return false
	}
	var err error
	if n.Error != nil {
		err = fmt.Errorf("%w: %s", ErrSubscriptionFailed, n.Error.Message)
	}
	s.end(err)
	return true
}

func (s *Stream[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	for {
		select {
		case s.values <- v:
			return
		default:
		}
		select {
		case <-s.values:
		default:
		}
	}
}

func (s *Stream[T]) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.values)
}

func subscribe[T any](ctx context.Context, c *Client, op wire.Operation, target string, payload any, opts []CallOption) (*Stream[T], error) {
	var resp wire.SubscribeResponse
	if err := c.call(ctx, op, target, payload, &resp, opts); err != nil {
		return nil, err
	}
	s := newStream[T](c, resp.SubscriptionID)
	c.register(resp.SubscriptionID, s)
	return s, nil
}

// Properties

// GetProperty reads a property.
func (c *Client) GetProperty(ctx context.Context, target string, opts ...CallOption) (wire.Value, error) {
	var p wire.PropertyValuePayload
	if err := c.call(ctx, wire.OpGetProperty, target, nil, &p, opts); err != nil {
		return wire.Value{}, err
	}
	return p.Value, nil
}

// SubscribeProperty streams the values of an observable property.
func (c *Client) SubscribeProperty(ctx context.Context, target string, opts ...CallOption) (*Stream[wire.PropertyValuePayload], error) {
	return subscribe[wire.PropertyValuePayload](ctx, c, wire.OpSubscribeProperty, target, nil, opts)
}

// Commands

// Invoke calls a command. Unobservable commands answer with Responses,
// observable ones with a Confirmation.
func (c *Client) Invoke(ctx context.Context, target string, params map[string]wire.Value, opts ...CallOption) (*wire.InvokeResponsePayload, error) {
	var p wire.InvokeResponsePayload
	if err := c.call(ctx, wire.OpInvoke, target, &wire.InvokePayload{Parameters: params}, &p, opts); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExecutionInfo returns the state of an execution.
func (c *Client) ExecutionInfo(ctx context.Context, executionUUID string) (*wire.ExecutionInfoPayload, error) {
	var p wire.ExecutionInfoPayload
	if err := c.call(ctx, wire.OpExecutionInfo, "", &wire.ExecutionPayload{ExecutionUUID: executionUUID}, &p, nil); err != nil {
		return nil, err
	}
	return &p, nil
}

// SubscribeExecution streams the state of an execution until it finishes.
func (c *Client) SubscribeExecution(ctx context.Context, executionUUID string) (*Stream[wire.ExecutionInfoPayload], error) {
	return subscribe[wire.ExecutionInfoPayload](ctx, c, wire.OpSubscribeExecution, "", &wire.ExecutionPayload{ExecutionUUID: executionUUID}, nil)
}

// SubscribeIntermediate streams the intermediate responses of an execution.
func (c *Client) SubscribeIntermediate(ctx context.Context, executionUUID string) (*Stream[wire.ResponsesPayload], error) {
	return subscribe[wire.ResponsesPayload](ctx, c, wire.OpSubscribeIntermediate, "", &wire.ExecutionPayload{ExecutionUUID: executionUUID}, nil)
}

// Result returns the responses of a finished execution.
func (c *Client) Result(ctx context.Context, executionUUID string) (map[string]wire.Value, error) {
	var p wire.ResponsesPayload
	if err := c.call(ctx, wire.OpResult, "", &wire.ExecutionPayload{ExecutionUUID: executionUUID}, &p, nil); err != nil {
		return nil, err
	}
	return p.Responses, nil
}

// Cancel asks the server to cancel an execution. It reports whether the
// cancellation decided the outcome.
func (c *Client) Cancel(ctx context.Context, executionUUID string) (bool, error) {
	var p wire.CancelResponse
	if err := c.call(ctx, wire.OpCancel, "", &wire.ExecutionPayload{ExecutionUUID: executionUUID}, &p, nil); err != nil {
		return false, err
	}
	return p.Accepted, nil
}

// Unsubscribe cancels a subscription.
func (c *Client) Unsubscribe(ctx context.Context, subscriptionID uint32) error {
	return c.call(ctx, wire.OpUnsubscribe, "", &wire.UnsubscribePayload{SubscriptionID: subscriptionID}, nil, nil)
}

// Binary transfer

// UploadBinary uploads data for the parameter target in chunks of
// chunkSize bytes and returns the binary UUID to pass as the parameter's
// BinaryRef. A chunkSize of zero selects DefaultChunkSize.
func (c *Client) UploadBinary(ctx context.Context, target string, data []byte, chunkSize int, opts ...CallOption) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	total := uint64(len(data))
	count := (total + uint64(chunkSize) - 1) / uint64(chunkSize)

	var info wire.BinaryInfoPayload
	create := &wire.CreateUploadPayload{TotalSize: total, ChunkCount: uint32(count)}
	if err := c.call(ctx, wire.OpCreateBinaryUpload, target, create, &info, opts); err != nil {
		return "", err
	}
	if info.MaxChunkSize > 0 && chunkSize > int(info.MaxChunkSize) {
		chunkSize = int(info.MaxChunkSize)
	}

	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		chunk := &wire.UploadChunkPayload{BinaryUUID: info.BinaryUUID, Offset: uint64(offset), Data: data[offset:end]}
		var ack wire.UploadChunkResponse
		if err := c.call(ctx, wire.OpUploadChunk, "", chunk, &ack, nil); err != nil {
			return "", fmt.Errorf("chunk at %d: %w", offset, err)
		}
		if ack.Received != uint64(end) {
			return "", fmt.Errorf("%w: server has %d bytes, sent %d", ErrUnexpectedReply, ack.Received, end)
		}
	}
	return info.BinaryUUID, nil
}

// DownloadBinary fetches a binary the server published, in chunks of at
// most chunkSize bytes. A chunkSize of zero selects the server's maximum.
func (c *Client) DownloadBinary(ctx context.Context, binaryUUID string, chunkSize int) ([]byte, error) {
	var info wire.BinaryInfoPayload
	if err := c.call(ctx, wire.OpCreateBinaryDownload, "", &wire.BinaryPayload{BinaryUUID: binaryUUID}, &info, nil); err != nil {
		return nil, err
	}
	if info.TotalSize == 0 {
		_ = c.DeleteBinary(ctx, binaryUUID)
		return []byte{}, nil
	}
	if chunkSize <= 0 || (info.MaxChunkSize > 0 && chunkSize > int(info.MaxChunkSize)) {
		chunkSize = int(info.MaxChunkSize)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	data := make([]byte, 0, info.TotalSize)
	for uint64(len(data)) < info.TotalSize {
		req := &wire.GetChunkPayload{BinaryUUID: binaryUUID, Offset: uint64(len(data)), Length: uint32(chunkSize)}
		var chunk wire.ChunkPayload
		if err := c.call(ctx, wire.OpGetChunk, "", req, &chunk, nil); err != nil {
			return nil, fmt.Errorf("chunk at %d: %w", len(data), err)
		}
		if chunk.Offset != uint64(len(data)) || len(chunk.Data) == 0 {
			return nil, fmt.Errorf("%w: chunk at %d with %d bytes", ErrUnexpectedReply, chunk.Offset, len(chunk.Data))
		}
		data = append(data, chunk.Data...)
	}
	return data, nil
}

// DeleteBinary releases a binary before its lifetime ends.
func (c *Client) DeleteBinary(ctx context.Context, binaryUUID string) error {
	return c.call(ctx, wire.OpDeleteBinary, "", &wire.BinaryPayload{BinaryUUID: binaryUUID}, nil, nil)
}
