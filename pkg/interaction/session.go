package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Session handles the requests of one connection and owns its subscriptions.
type Session struct {
	server *Server
	notify NotificationHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[uint32]*Subscription
	nextSubID     uint32
	closed        bool

	wg sync.WaitGroup
}

func newSession(s *Server, notify NotificationHandler) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		server:        s,
		notify:        notify,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[uint32]*Subscription),
		nextSubID:     1,
	}
}

// HandleRequest processes an incoming request and returns a response.
func (s *Session) HandleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	start := time.Now()
	resp := s.dispatch(ctx, req)

	if obs := s.server.config.Observer; obs != nil {
		obs.RequestHandled(req.Operation, resp.Status, time.Since(start))
	}
	if logger := s.server.config.Logger; logger != nil && !resp.IsSuccess() {
		msg := ""
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		logger.Debug("request failed",
			slog.String("operation", req.Operation.String()),
			slog.String("target", req.Target),
			slog.String("status", resp.Status.String()),
			slog.String("error", msg))
	}
	return resp
}

func (s *Session) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	if !req.Operation.IsValid() {
		return errorResponse(req.MessageID, fmt.Errorf("%w: operation %d", ErrUnsupported, req.Operation))
	}
	if err := req.Validate(); err != nil {
		return errorResponse(req.MessageID, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}

	var payload any
	var err error
	switch req.Operation {
	case wire.OpGetProperty:
		payload, err = s.handleGetProperty(ctx, req)
	case wire.OpSubscribeProperty:
		payload, err = s.handleSubscribeProperty(ctx, req)
	case wire.OpInvoke:
		payload, err = s.handleInvoke(ctx, req)
	case wire.OpExecutionInfo:
		payload, err = s.handleExecutionInfo(req)
	case wire.OpSubscribeExecution:
		payload, err = s.handleSubscribeExecution(req)
	case wire.OpSubscribeIntermediate:
		payload, err = s.handleSubscribeIntermediate(req)
	case wire.OpResult:
		payload, err = s.handleResult(req)
	case wire.OpCancel:
		payload, err = s.handleCancel(req)
	case wire.OpUnsubscribe:
		payload, err = s.handleUnsubscribe(req)
	case wire.OpCreateBinaryUpload:
		payload, err = s.handleCreateBinaryUpload(ctx, req)
	case wire.OpUploadChunk:
		payload, err = s.handleUploadChunk(req)
	case wire.OpCreateBinaryDownload:
		payload, err = s.handleCreateBinaryDownload(req)
	case wire.OpGetChunk:
		payload, err = s.handleGetChunk(req)
	case wire.OpDeleteBinary:
		payload, err = s.handleDeleteBinary(req)
	}
	if err != nil {
		return errorResponse(req.MessageID, err)
	}
	return respond(req.MessageID, payload)
}

func respond(msgID uint32, payload any) *wire.Response {
	resp := &wire.Response{MessageID: msgID, Status: wire.StatusSuccess}
	if payload == nil {
		return resp
	}
	data, err := wire.Marshal(payload)
	if err != nil {
		return errorResponse(msgID, &execution.UndefinedError{Message: fmt.Sprintf("encoding response: %v", err), Err: err})
	}
	resp.Payload = data
	return resp
}

func decodePayload(req *wire.Request, v any) error {
	if err := req.DecodePayload(v); err != nil {
		if errors.Is(err, wire.ErrNoPayload) {
			return fmt.Errorf("%w: %s requires a payload", ErrMalformedRequest, req.Operation)
		}
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

// resolve parses text as an FQI of the given kind. Addressing a feature the
// server does not implement fails with the core UnimplementedFeature error.
func (s *Session) resolve(text string, kind fqi.Kind) (fqi.FQI, error) {
	id, err := fqi.Parse(text)
	if err != nil {
		return fqi.FQI{}, err
	}
	if id.Kind() != kind {
		return fqi.FQI{}, fmt.Errorf("%w: %s is a %s, not a %s", fqi.ErrInvalidIdentifier, text, id.Kind(), kind)
	}
	if _, ok := s.server.registry.Feature(id.Feature()); !ok {
		return fqi.FQI{}, execution.NewDefinedError(core.UnimplementedFeature, "feature %s is not implemented", id.Feature())
	}
	return id, nil
}

func (s *Session) property(req *wire.Request) (*model.Property, error) {
	id, err := s.resolve(req.Target, fqi.KindProperty)
	if err != nil {
		return nil, err
	}
	p, ok := s.server.registry.Property(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	return p, nil
}

func (s *Session) withMetadata(ctx context.Context, target fqi.FQI, sent map[string]wire.Value) (context.Context, error) {
	md, err := decodeMetadata(ctx, s.server.registry, s.server.codec, target, sent)
	if err != nil {
		return nil, err
	}
	return withMetadata(ctx, md), nil
}

// Properties

func (s *Session) handleGetProperty(ctx context.Context, req *wire.Request) (any, error) {
	p, err := s.property(req)
	if err != nil {
		return nil, err
	}
	ctx, err = s.withMetadata(ctx, p.ID, req.Metadata)
	if err != nil {
		return nil, err
	}
	v, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	return wire.PropertyValuePayload{Value: v}, nil
}

// read calls the property getter and encodes the value.
func (s *Session) read(ctx context.Context, p *model.Property) (wire.Value, error) {
	if p.Get == nil {
		return wire.Value{}, &execution.UndefinedError{
			Message: fmt.Sprintf("%s is not implemented", p.ID.Identifier()),
			Err:     execution.ErrNotImplemented,
		}
	}
	v, err := get(ctx, p.Get)
	if err != nil {
		return wire.Value{}, propertyError(p, err)
	}
	out, err := s.server.codec.ToMessage(ctx, p.Type, v)
	if err != nil {
		return wire.Value{}, &execution.UndefinedError{Message: fmt.Sprintf("invalid value: %v", err), Err: err}
	}
	return out, nil
}

func get(ctx context.Context, getter model.PropertyGetter) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &execution.UndefinedError{Message: fmt.Sprintf("getter panicked: %v", r)}
		}
	}()
	return getter(ctx)
}

// propertyError keeps the defined errors a property declares and turns
// everything else into an undefined error.
func propertyError(p *model.Property, err error) error {
	var de *execution.DefinedError
	if errors.As(err, &de) {
		if p.AllowsError(de.ID) {
			return de
		}
		return &execution.UndefinedError{Message: fmt.Sprintf("undeclared error %s: %s", de.ID, de.Message)}
	}
	var ue *execution.UndefinedError
	if errors.As(err, &ue) {
		return ue
	}
	return &execution.UndefinedError{Message: err.Error(), Err: err}
}

func (s *Session) handleSubscribeProperty(ctx context.Context, req *wire.Request) (any, error) {
	p, err := s.property(req)
	if err != nil {
		return nil, err
	}
	if !p.Observable {
		return nil, fmt.Errorf("%w: %s", ErrNotObservable, p.ID)
	}
	md, err := decodeMetadata(ctx, s.server.registry, s.server.codec, p.ID, req.Metadata)
	if err != nil {
		return nil, err
	}

	var stream <-chan any
	sub, subCtx, err := s.open(SubscriptionProperty, p.ID.String(), md)
	if err != nil {
		return nil, err
	}
	if p.Watch != nil {
		stream, err = p.Watch(subCtx)
		if err != nil {
			s.discard(sub)
			return nil, propertyError(p, err)
		}
	}

	s.run(sub, func(ctx context.Context) *wire.ErrorPayload {
		if stream != nil {
			return s.streamProperty(ctx, sub, p, stream)
		}
		return s.pollProperty(ctx, sub, p)
	})
	return wire.SubscribeResponse{SubscriptionID: sub.ID}, nil
}

func (s *Session) streamProperty(ctx context.Context, sub *Subscription, p *model.Property, stream <-chan any) *wire.ErrorPayload {
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-stream:
			if !ok {
				return nil
			}
			out, err := s.server.codec.ToMessage(ctx, p.Type, v)
			if err != nil {
				return ErrorPayloadFor(&execution.UndefinedError{Message: fmt.Sprintf("invalid value: %v", err), Err: err})
			}
			s.send(sub, wire.PropertyValuePayload{Value: out}, false, nil)
		}
	}
}

// pollProperty reads the property every PollInterval and sends the value
// whenever it changed.
func (s *Session) pollProperty(ctx context.Context, sub *Subscription, p *model.Property) *wire.ErrorPayload {
	ticker := time.NewTicker(s.server.config.PollInterval)
	defer ticker.Stop()

	var last wire.Value
	first := true
	for {
		v, err := s.read(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ErrorPayloadFor(err)
		}
		if first || !reflect.DeepEqual(v, last) {
			s.send(sub, wire.PropertyValuePayload{Value: v}, false, nil)
			last, first = v, false
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Commands

func (s *Session) handleInvoke(ctx context.Context, req *wire.Request) (any, error) {
	id, err := s.resolve(req.Target, fqi.KindCommand)
	if err != nil {
		return nil, err
	}
	cmd, ok := s.server.registry.Command(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}

	var p wire.InvokePayload
	if err := req.DecodePayload(&p); err != nil && !errors.Is(err, wire.ErrNoPayload) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	ctx, err = s.withMetadata(ctx, cmd.ID, req.Metadata)
	if err != nil {
		return nil, err
	}

	res, err := s.server.engine.Invoke(ctx, cmd, wire.Struct(p.Parameters))
	if err != nil {
		return nil, err
	}
	if res.Observable() {
		return wire.InvokeResponsePayload{Confirmation: &wire.CommandConfirmation{
			ExecutionUUID:  res.ExecutionID.String(),
			LifetimeMillis: s.server.engine.Retention().Milliseconds(),
		}}, nil
	}
	return wire.InvokeResponsePayload{Responses: res.Responses.Fields}, nil
}

func parseExecution(req *wire.Request) (uuid.UUID, error) {
	var p wire.ExecutionPayload
	if err := decodePayload(req, &p); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(p.ExecutionUUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", execution.ErrInvalidExecutionUUID, p.ExecutionUUID)
	}
	return id, nil
}

func infoPayload(info execution.Info) wire.ExecutionInfoPayload {
	p := wire.ExecutionInfoPayload{Status: info.Status, Progress: info.Progress}
	if info.EstimatedRemaining != nil {
		ms := info.EstimatedRemaining.Milliseconds()
		p.EstimatedRemainingMillis = &ms
	}
	if info.Status.IsTerminal() {
		ms := info.Lifetime.Milliseconds()
		p.LifetimeMillis = &ms
	}
	return p
}

func (s *Session) handleExecutionInfo(req *wire.Request) (any, error) {
	id, err := parseExecution(req)
	if err != nil {
		return nil, err
	}
	info, err := s.server.engine.Status(id)
	if err != nil {
		return nil, err
	}
	return infoPayload(info), nil
}

func (s *Session) handleSubscribeExecution(req *wire.Request) (any, error) {
	id, err := parseExecution(req)
	if err != nil {
		return nil, err
	}
	sub, ctx, err := s.open(SubscriptionExecution, id.String(), nil)
	if err != nil {
		return nil, err
	}
	infos, err := s.server.engine.Watch(ctx, id)
	if err != nil {
		s.discard(sub)
		return nil, err
	}
	s.run(sub, func(context.Context) *wire.ErrorPayload {
		for info := range infos {
			s.send(sub, infoPayload(info), false, nil)
		}
		return nil
	})
	return wire.SubscribeResponse{SubscriptionID: sub.ID}, nil
}

func (s *Session) handleSubscribeIntermediate(req *wire.Request) (any, error) {
	id, err := parseExecution(req)
	if err != nil {
		return nil, err
	}
	sub, ctx, err := s.open(SubscriptionIntermediate, id.String(), nil)
	if err != nil {
		return nil, err
	}
	values, err := s.server.engine.WatchIntermediate(ctx, id)
	if err != nil {
		s.discard(sub)
		return nil, err
	}
	s.run(sub, func(context.Context) *wire.ErrorPayload {
		for v := range values {
			s.send(sub, wire.ResponsesPayload{Responses: v.Fields}, false, nil)
		}
		return nil
	})
	return wire.SubscribeResponse{SubscriptionID: sub.ID}, nil
}

func (s *Session) handleResult(req *wire.Request) (any, error) {
	id, err := parseExecution(req)
	if err != nil {
		return nil, err
	}
	responses, err := s.server.engine.Responses(id)
	if err != nil {
		return nil, err
	}
	return wire.ResponsesPayload{Responses: responses.Fields}, nil
}

func (s *Session) handleCancel(req *wire.Request) (any, error) {
	id, err := parseExecution(req)
	if err != nil {
		return nil, err
	}
	accepted, err := s.server.engine.TryCancel(id)
	if err != nil {
		return nil, err
	}
	return wire.CancelResponse{Accepted: accepted}, nil
}

// Binary transfer

// handleCreateBinaryUpload accepts uploads for parameters whose type holds a
// Binary. The metadata of the parameter's command is required up front.
func (s *Session) handleCreateBinaryUpload(ctx context.Context, req *wire.Request) (any, error) {
	id, err := s.resolve(req.Target, fqi.KindParameter)
	if err != nil {
		return nil, err
	}
	cmd, ok := s.server.registry.Command(id.Parent())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id.Parent())
	}
	field, ok := findField(cmd.Parameters, id.Identifier())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	if !holdsBinary(field.Type) {
		return nil, fmt.Errorf("%w: %s is not a binary parameter", ErrUnsupported, id)
	}
	if _, err := decodeMetadata(ctx, s.server.registry, s.server.codec, cmd.ID, req.Metadata); err != nil {
		return nil, err
	}

	var p wire.CreateUploadPayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	info, err := s.server.binaries.CreateUpload(id.String(), p.TotalSize, p.ChunkCount)
	if err != nil {
		return nil, err
	}
	return s.binaryInfo(info), nil
}

func (s *Session) binaryInfo(info binary.Info) wire.BinaryInfoPayload {
	return wire.BinaryInfoPayload{
		BinaryUUID:     info.ID.String(),
		TotalSize:      info.TotalSize,
		MaxChunkSize:   uint32(s.server.binaries.MaxChunkSize()),
		LifetimeMillis: info.Lifetime.Milliseconds(),
	}
}

// lifetime returns the remaining lifetime of a binary in milliseconds, or
// zero once it is gone.
func (s *Session) lifetime(id uuid.UUID) int64 {
	info, err := s.server.binaries.Info(id)
	if err != nil {
		return 0
	}
	return info.Lifetime.Milliseconds()
}

func parseBinary(text string) (uuid.UUID, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", binary.ErrBinaryUnknown, text)
	}
	return id, nil
}

func (s *Session) handleUploadChunk(req *wire.Request) (any, error) {
	var p wire.UploadChunkPayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	id, err := parseBinary(p.BinaryUUID)
	if err != nil {
		return nil, err
	}
	received, err := s.server.binaries.AppendChunk(id, p.Offset, p.Data)
	if err != nil {
		return nil, err
	}
	return wire.UploadChunkResponse{Received: received, LifetimeMillis: s.lifetime(id)}, nil
}

func (s *Session) handleCreateBinaryDownload(req *wire.Request) (any, error) {
	var p wire.BinaryPayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	id, err := parseBinary(p.BinaryUUID)
	if err != nil {
		return nil, err
	}
	info, err := s.server.binaries.CreateDownload(id)
	if err != nil {
		return nil, err
	}
	return s.binaryInfo(info), nil
}

func (s *Session) handleGetChunk(req *wire.Request) (any, error) {
	var p wire.GetChunkPayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	id, err := parseBinary(p.BinaryUUID)
	if err != nil {
		return nil, err
	}
	data, err := s.server.binaries.GetChunk(id, p.Offset, int(p.Length))
	if err != nil {
		return nil, err
	}
	return wire.ChunkPayload{Offset: p.Offset, Data: data, LifetimeMillis: s.lifetime(id)}, nil
}

func (s *Session) handleDeleteBinary(req *wire.Request) (any, error) {
	var p wire.BinaryPayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	id, err := parseBinary(p.BinaryUUID)
	if err != nil {
		return nil, err
	}
	return nil, s.server.binaries.Delete(id)
}

// findField looks up a structure field, ignoring case.
func findField(s datatype.Structure, id string) (datatype.Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Identifier, id) {
			return f, true
		}
	}
	return datatype.Field{}, false
}

// holdsBinary reports whether values of t can contain a Binary.
func holdsBinary(t datatype.Type) bool {
	switch t := datatype.Underlying(t).(type) {
	case datatype.Basic:
		return t.K == native.KindBinary
	case datatype.Constrained:
		return holdsBinary(t.Base)
	case datatype.List:
		return holdsBinary(t.Elem)
	case datatype.Structure:
		for _, f := range t.Fields {
			if holdsBinary(f.Type) {
				return true
			}
		}
	}
	return false
}

// Subscriptions

func (s *Session) handleUnsubscribe(req *wire.Request) (any, error) {
	var p wire.UnsubscribePayload
	if err := decodePayload(req, &p); err != nil {
		return nil, err
	}
	return nil, s.Unsubscribe(p.SubscriptionID)
}

// open registers a subscription. Its context carries md and ends with the
// session or on Unsubscribe.
func (s *Session) open(kind SubscriptionKind, target string, md Metadata) (*Subscription, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, fmt.Errorf("%w: session closed", ErrUnsupported)
	}

	ctx, cancel := context.WithCancel(withMetadata(s.ctx, md))
	sub := &Subscription{
		ID:      s.nextSubID,
		Kind:    kind,
		Target:  target,
		Created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.nextSubID++
	s.subscriptions[sub.ID] = sub
	return sub, ctx, nil
}

// run streams a subscription in the background. When stream returns, a
// final notification carrying its error is sent unless the session closed.
func (s *Session) run(sub *Subscription, stream func(ctx context.Context) *wire.ErrorPayload) {
	s.logSubscription(sub, "", "active", sub.Kind.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		errPayload := stream(sub.ctx)
		if !s.isClosed() {
			s.send(sub, nil, true, errPayload)
		}
		s.discard(sub)
	}()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// discard removes a subscription and releases its resources.
func (s *Session) discard(sub *Subscription) {
	s.mu.Lock()
	_, ok := s.subscriptions[sub.ID]
	delete(s.subscriptions, sub.ID)
	s.mu.Unlock()

	sub.cancel()
	if ok {
		close(sub.done)
		s.logSubscription(sub, "active", "ended", "")
	}
}

func (s *Session) send(sub *Subscription, payload any, final bool, errPayload *wire.ErrorPayload) {
	n := &wire.Notification{SubscriptionID: sub.ID, Final: final, Error: errPayload}
	if payload != nil {
		data, err := wire.Marshal(payload)
		if err != nil {
			if logger := s.server.config.Logger; logger != nil {
				logger.Warn("failed to encode notification", slog.Uint64("subscription", uint64(sub.ID)), slog.Any("error", err))
			}
			return
		}
		n.Payload = data
	}
	if s.notify == nil {
		return
	}
	s.notify(n)
	sub.sent.Add(1)
}

func (s *Session) logSubscription(sub *Subscription, old, state, reason string) {
	if s.server.config.ProtocolLogger == nil {
		return
	}
	event := log.NewStateChange(log.StateEntitySubscription, strconv.FormatUint(uint64(sub.ID), 10), old, state, reason)
	event.Target = sub.Target
	s.server.config.ProtocolLogger.Log(event)
}

// Unsubscribe ends a subscription. Its final notification follows.
func (s *Session) Unsubscribe(id uint32) error {
	s.mu.Lock()
	sub, ok := s.subscriptions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrSubscriptionNotFound, id)
	}
	sub.cancel()
	return nil
}

// Subscription returns an active subscription.
func (s *Session) Subscription(id uint32) (*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	return sub, ok
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// Close ends all subscriptions and waits for their streams to stop. No
// final notifications are sent after Close.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
