package interaction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

const labFeature = `
identifier: Lab
originator: org.example
category: tests
featureVersion: "1.0"
commands:
  - identifier: Echo
    parameters:
      - identifier: Text
        dataType: {basic: String}
    responses:
      - identifier: Text
        dataType: {basic: String}
    errors: [Refused]
  - identifier: SetTemperature
    parameters:
      - identifier: Value
        dataType:
          constrained:
            base: {basic: Integer}
            constraints:
              minimalInclusive: "0"
              maximalInclusive: "100"
  - identifier: Wait
    observable: true
    parameters:
      - identifier: Steps
        dataType: {basic: Integer}
    responses:
      - identifier: Total
        dataType: {basic: Integer}
    intermediateResponses:
      - identifier: Step
        dataType: {basic: Integer}
  - identifier: Store
    parameters:
      - identifier: Data
        dataType: {basic: Binary}
    responses:
      - identifier: Size
        dataType: {basic: Integer}
  - identifier: Fetch
    parameters:
      - identifier: Size
        dataType: {basic: Integer}
    responses:
      - identifier: Data
        dataType: {basic: Binary}
properties:
  - identifier: Name
    dataType: {basic: String}
  - identifier: Temperature
    observable: true
    dataType: {basic: Integer}
  - identifier: Counter
    observable: true
    dataType: {basic: Integer}
errors:
  - identifier: Refused
metadata:
  - identifier: ClientName
    dataType: {basic: String}
    affects:
      - org.example/tests/Lab/v1/Command/Echo
`

var lab = fqi.MustParse("org.example/tests/Lab/v1")

// loopback connects a client to a session through the wire codec.
type loopback struct {
	session *Session
	client  *Client
}

func (l *loopback) Send(data []byte) error {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		return err
	}
	go func() {
		resp := l.session.HandleRequest(context.Background(), req)
		encoded, err := wire.EncodeResponse(resp)
		if err != nil {
			panic(err)
		}
		decoded, err := wire.DecodeResponse(encoded)
		if err != nil {
			panic(err)
		}
		_ = l.client.HandleResponse(decoded)
	}()
	return nil
}

func (l *loopback) notify(n *wire.Notification) {
	encoded, err := wire.EncodeNotification(n)
	if err != nil {
		panic(err)
	}
	decoded, err := wire.DecodeNotification(encoded)
	if err != nil {
		panic(err)
	}
	l.client.HandleNotification(decoded)
}

type fixture struct {
	session     *Session
	client      *Client
	engine      *execution.Engine
	binaries    *binary.Registry
	temperature *model.ObservableValue
	counter     *atomic.Int64
	release     chan struct{}
	releaseOnce sync.Once
}

// unblock lets waiting Wait executions run.
func (f *fixture) unblock() {
	f.releaseOnce.Do(func() { close(f.release) })
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		temperature: model.NewObservableValue(int64(20)),
		counter:     &atomic.Int64{},
		release:     make(chan struct{}),
	}

	def, err := featuredef.Parse([]byte(labFeature))
	require.NoError(t, err)
	reg, err := model.NewBuilder().
		AddFeature(def).
		HandleCommand(lab.Command("Echo"), echo).
		HandleCommand(lab.Command("SetTemperature"), func(ctx context.Context, params map[string]any) (map[string]any, error) {
			f.temperature.Set(params["Value"])
			return nil, nil
		}).
		HandleCommand(lab.Command("Wait"), f.wait).
		HandleCommand(lab.Command("Store"), func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"Size": int64(len(params["Data"].([]byte)))}, nil
		}).
		HandleCommand(lab.Command("Fetch"), func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"Data": pattern(int(params["Size"].(int64)))}, nil
		}).
		HandleProperty(lab.Property("Name"), func(ctx context.Context) (any, error) {
			return "lab", nil
		}).
		HandleObservableProperty(lab.Property("Temperature"), f.temperature).
		HandleProperty(lab.Property("Counter"), func(ctx context.Context) (any, error) {
			return f.counter.Load(), nil
		}).
		Build()
	require.NoError(t, err)

	f.binaries = binary.NewRegistry(binary.Config{MaxChunkSize: 64 << 10, IdleTimeout: time.Minute})
	codec := datatype.NewCodec(f.binaries)
	codec.InlineThreshold = 1024
	f.engine = execution.NewEngine(execution.Config{Retention: time.Minute}, codec)

	server := NewServer(Config{PollInterval: 10 * time.Millisecond}, reg, f.engine, f.binaries, codec)
	lb := &loopback{}
	f.session = server.NewSession(lb.notify)
	f.client = NewClient(lb)
	f.client.SetTimeout(5 * time.Second)
	lb.session, lb.client = f.session, f.client

	t.Cleanup(func() {
		f.unblock()
		f.session.Close()
		_ = f.client.Close()
		f.engine.Close()
		f.binaries.Close()
	})
	return f
}

func echo(ctx context.Context, params map[string]any) (map[string]any, error) {
	text := params["Text"].(string)
	if text == "refuse" {
		return nil, execution.NewDefinedError(lab.DefinedExecutionError("Refused"), "refused")
	}
	if name, ok := MetadataFromContext(ctx).Get(lab.Metadata("ClientName")); ok {
		text = fmt.Sprintf("%s from %s", text, name)
	}
	return map[string]any{"Text": text}, nil
}

// wait counts down Steps intermediate responses once released.
func (f *fixture) wait(ctx context.Context, params map[string]any) (map[string]any, error) {
	x, _ := execution.FromContext(ctx)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	steps := params["Steps"].(int64)
	for i := int64(1); i <= steps; i++ {
		if err := x.SendIntermediate(map[string]any{"Step": i}); err != nil {
			return nil, err
		}
	}
	return map[string]any{"Total": steps}, nil
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func clientName(name string) CallOption {
	return WithMetadata(lab.Metadata("ClientName"), wire.Str(name))
}

func requireStatus(t *testing.T, err error, status wire.Status) *StatusError {
	t.Helper()
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, status, se.Status, se.Message)
	return se
}

func TestGetProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.client.GetProperty(ctx, lab.Property("Name").String())
	require.NoError(t, err)
	assert.Equal(t, wire.Str("lab"), v)

	t.Run("unimplemented feature", func(t *testing.T) {
		_, err := f.client.GetProperty(ctx, "org.example/tests/Missing/v1/Property/Name")
		se := requireStatus(t, err, wire.StatusDefinedExecutionError)
		assert.Equal(t, core.UnimplementedFeature.String(), se.Identifier)
	})

	t.Run("malformed identifier", func(t *testing.T) {
		_, err := f.client.GetProperty(ctx, "not an fqi")
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})

	t.Run("unknown property", func(t *testing.T) {
		_, err := f.client.GetProperty(ctx, lab.Property("Pressure").String())
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})

	t.Run("command identifier", func(t *testing.T) {
		_, err := f.client.GetProperty(ctx, lab.Command("Echo").String())
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})
}

func TestInvokeUnobservable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := lab.Command("Echo").String()
	params := map[string]wire.Value{"Text": wire.Str("hello")}

	t.Run("with metadata", func(t *testing.T) {
		res, err := f.client.Invoke(ctx, target, params, clientName("robot"))
		require.NoError(t, err)
		assert.Nil(t, res.Confirmation)
		assert.Equal(t, wire.Str("hello from robot"), res.Responses["Text"])
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, target, params)
		requireStatus(t, err, wire.StatusInvalidMetadata)
	})

	t.Run("unknown metadata", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, target, params, clientName("robot"),
			WithMetadata(lab.Metadata("Token"), wire.Str("x")))
		requireStatus(t, err, wire.StatusInvalidMetadata)
	})

	t.Run("defined error", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, target, map[string]wire.Value{"Text": wire.Str("refuse")}, clientName("robot"))
		se := requireStatus(t, err, wire.StatusDefinedExecutionError)
		assert.Equal(t, lab.DefinedExecutionError("Refused").String(), se.Identifier)
		assert.Equal(t, "refused", se.Message)
	})

	t.Run("missing parameter", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, target, nil, clientName("robot"))
		requireStatus(t, err, wire.StatusDecodeError)
	})

	t.Run("wrong parameter type", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, target, map[string]wire.Value{"Text": wire.Int(1)}, clientName("robot"))
		require.Error(t, err)
	})

	t.Run("constraint violation", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, lab.Command("SetTemperature").String(), map[string]wire.Value{"Value": wire.Int(150)})
		se := requireStatus(t, err, wire.StatusValidationError)
		assert.NotEmpty(t, se.Identifier)
		assert.Equal(t, int64(20), f.temperature.Value())
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := f.client.Invoke(ctx, lab.Command("Launch").String(), nil)
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})
}

func TestObservableCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.client.Invoke(ctx, lab.Command("Wait").String(), map[string]wire.Value{"Steps": wire.Int(3)})
	require.NoError(t, err)
	require.NotNil(t, res.Confirmation)
	id := res.Confirmation.ExecutionUUID
	assert.Equal(t, time.Minute.Milliseconds(), res.Confirmation.LifetimeMillis)

	_, err = f.client.Result(ctx, id)
	requireStatus(t, err, wire.StatusCommandExecutionNotFinished)

	info, err := f.client.ExecutionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wire.ExecutionRunning, info.Status)
	assert.Nil(t, info.LifetimeMillis)

	updates, err := f.client.SubscribeExecution(ctx, id)
	require.NoError(t, err)
	steps, err := f.client.SubscribeIntermediate(ctx, id)
	require.NoError(t, err)

	f.unblock()

	var got []int64
	for v := range steps.Values() {
		got = append(got, v.Responses["Step"].Integer)
	}
	require.NoError(t, steps.Err())
	assert.Equal(t, []int64{1, 2, 3}, got)

	var last wire.ExecutionInfoPayload
	for info := range updates.Values() {
		last = info
	}
	require.NoError(t, updates.Err())
	assert.Equal(t, wire.ExecutionFinishedSuccessfully, last.Status)
	require.NotNil(t, last.LifetimeMillis)

	responses, err := f.client.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wire.Int(3), responses["Total"])

	t.Run("invalid uuid", func(t *testing.T) {
		_, err := f.client.ExecutionInfo(ctx, "nope")
		requireStatus(t, err, wire.StatusInvalidExecutionUUID)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		_, err := f.client.Result(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		requireStatus(t, err, wire.StatusInvalidExecutionUUID)
	})
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.client.Invoke(ctx, lab.Command("Wait").String(), map[string]wire.Value{"Steps": wire.Int(1)})
	require.NoError(t, err)
	id := res.Confirmation.ExecutionUUID

	accepted, err := f.client.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, accepted)

	info, err := f.client.ExecutionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wire.ExecutionFinishedWithError, info.Status)

	_, err = f.client.Result(ctx, id)
	requireStatus(t, err, wire.StatusUndefinedExecutionError)

	accepted, err = f.client.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestSubscribeProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("change stream", func(t *testing.T) {
		stream, err := f.client.SubscribeProperty(ctx, lab.Property("Temperature").String())
		require.NoError(t, err)

		first := <-stream.Values()
		assert.Equal(t, wire.Int(20), first.Value)

		_, err = f.client.Invoke(ctx, lab.Command("SetTemperature").String(), map[string]wire.Value{"Value": wire.Int(37)})
		require.NoError(t, err)
		next := <-stream.Values()
		assert.Equal(t, wire.Int(37), next.Value)

		require.NoError(t, stream.Close(ctx))
		for range stream.Values() {
		}
		assert.NoError(t, stream.Err())
		require.Eventually(t, func() bool { return f.session.SubscriptionCount() == 0 }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool { return f.temperature.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("polled", func(t *testing.T) {
		stream, err := f.client.SubscribeProperty(ctx, lab.Property("Counter").String())
		require.NoError(t, err)
		defer func() { _ = stream.Close(ctx) }()

		first := <-stream.Values()
		assert.Equal(t, wire.Int(0), first.Value)

		f.counter.Store(5)
		select {
		case next := <-stream.Values():
			assert.Equal(t, wire.Int(5), next.Value)
		case <-time.After(2 * time.Second):
			t.Fatal("no update after change")
		}
	})

	t.Run("unobservable", func(t *testing.T) {
		_, err := f.client.SubscribeProperty(ctx, lab.Property("Name").String())
		requireStatus(t, err, wire.StatusUnsupported)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		err := f.client.Unsubscribe(ctx, 999)
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})
}

func TestBinaryTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("upload as parameter", func(t *testing.T) {
		data := pattern(200 << 10)
		id, err := f.client.UploadBinary(ctx, lab.Command("Store").Parameter("Data").String(), data, 64<<10)
		require.NoError(t, err)

		res, err := f.client.Invoke(ctx, lab.Command("Store").String(), map[string]wire.Value{"Data": wire.BinaryRef(id)})
		require.NoError(t, err)
		assert.Equal(t, wire.Int(int64(len(data))), res.Responses["Size"])
	})

	t.Run("download response", func(t *testing.T) {
		res, err := f.client.Invoke(ctx, lab.Command("Fetch").String(), map[string]wire.Value{"Size": wire.Int(300000)})
		require.NoError(t, err)
		ref := res.Responses["Data"].BinaryRef
		require.NotEmpty(t, ref)

		data, err := f.client.DownloadBinary(ctx, ref, 0)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(pattern(300000), data))

		_, err = f.client.DownloadBinary(ctx, ref, 0)
		requireStatus(t, err, wire.StatusBinaryUnknown)
	})

	t.Run("response binary is not a parameter upload", func(t *testing.T) {
		res, err := f.client.Invoke(ctx, lab.Command("Fetch").String(), map[string]wire.Value{"Size": wire.Int(300000)})
		require.NoError(t, err)
		ref := res.Responses["Data"].BinaryRef
		require.NotEmpty(t, ref)

		_, err = f.client.Invoke(ctx, lab.Command("Store").String(), map[string]wire.Value{"Data": wire.BinaryRef(ref)})
		requireStatus(t, err, wire.StatusBinaryUnknown)

		// The rejected reference stays downloadable.
		data, err := f.client.DownloadBinary(ctx, ref, 0)
		require.NoError(t, err)
		assert.Len(t, data, 300000)
	})

	t.Run("small response inline", func(t *testing.T) {
		res, err := f.client.Invoke(ctx, lab.Command("Fetch").String(), map[string]wire.Value{"Size": wire.Int(10)})
		require.NoError(t, err)
		assert.Equal(t, pattern(10), res.Responses["Data"].Bytes)
	})

	t.Run("non-binary parameter", func(t *testing.T) {
		_, err := f.client.UploadBinary(ctx, lab.Command("Fetch").Parameter("Size").String(), []byte("x"), 0)
		requireStatus(t, err, wire.StatusUnsupported)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := f.client.UploadBinary(ctx, lab.Command("Store").Parameter("Blob").String(), []byte("x"), 0)
		requireStatus(t, err, wire.StatusInvalidIdentifier)
	})

	t.Run("out of order chunk", func(t *testing.T) {
		var info wire.BinaryInfoPayload
		err := f.client.call(ctx, wire.OpCreateBinaryUpload, lab.Command("Store").Parameter("Data").String(),
			&wire.CreateUploadPayload{TotalSize: 10, ChunkCount: 2}, &info, nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(64<<10), info.MaxChunkSize)

		err = f.client.call(ctx, wire.OpUploadChunk, "",
			&wire.UploadChunkPayload{BinaryUUID: info.BinaryUUID, Offset: 5, Data: []byte("abcde")}, nil, nil)
		requireStatus(t, err, wire.StatusInvalidChunkIndex)

		require.NoError(t, f.client.DeleteBinary(ctx, info.BinaryUUID))
		err = f.client.DeleteBinary(ctx, info.BinaryUUID)
		requireStatus(t, err, wire.StatusBinaryUnknown)
	})

	t.Run("unknown binary", func(t *testing.T) {
		err := f.client.call(ctx, wire.OpGetChunk, "",
			&wire.GetChunkPayload{BinaryUUID: "garbage", Length: 10}, nil, nil)
		requireStatus(t, err, wire.StatusBinaryUnknown)
	})
}

func TestSessionClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.SubscribeProperty(ctx, lab.Property("Temperature").String())
	require.NoError(t, err)
	_, err = f.client.SubscribeProperty(ctx, lab.Property("Counter").String())
	require.NoError(t, err)
	assert.Equal(t, 2, f.session.SubscriptionCount())

	f.session.Close()
	assert.Equal(t, 0, f.session.SubscriptionCount())

	_, err = f.client.SubscribeProperty(ctx, lab.Property("Temperature").String())
	requireStatus(t, err, wire.StatusUnsupported)
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown operation", func(t *testing.T) {
		resp := f.session.HandleRequest(ctx, &wire.Request{MessageID: 1, Operation: 99})
		assert.Equal(t, wire.StatusUnsupported, resp.Status)
	})

	t.Run("missing target", func(t *testing.T) {
		resp := f.session.HandleRequest(ctx, &wire.Request{MessageID: 2, Operation: wire.OpInvoke})
		assert.Equal(t, wire.StatusDecodeError, resp.Status)
	})

	t.Run("missing payload", func(t *testing.T) {
		resp := f.session.HandleRequest(ctx, &wire.Request{MessageID: 3, Operation: wire.OpResult})
		assert.Equal(t, wire.StatusDecodeError, resp.Status)
		assert.Equal(t, uint32(3), resp.MessageID)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want wire.Status
	}{
		{"nil", nil, wire.StatusSuccess},
		{"defined", execution.NewDefinedError(lab.DefinedExecutionError("Refused"), "no"), wire.StatusDefinedExecutionError},
		{"undefined", &execution.UndefinedError{Message: "x"}, wire.StatusUndefinedExecutionError},
		{"undefined wrapping validation", &execution.UndefinedError{Message: "x", Err: &constraint.ValidationError{}}, wire.StatusUndefinedExecutionError},
		{"validation", fmt.Errorf("p: %w", &constraint.ValidationError{}), wire.StatusValidationError},
		{"decode", datatype.ErrDecode, wire.StatusDecodeError},
		{"type", datatype.ErrType, wire.StatusTypeError},
		{"execution uuid", execution.ErrInvalidExecutionUUID, wire.StatusInvalidExecutionUUID},
		{"not finished", execution.ErrCommandExecutionNotFinished, wire.StatusCommandExecutionNotFinished},
		{"binary unknown", binary.ErrBinaryUnknown, wire.StatusBinaryUnknown},
		{"chunk index", binary.ErrInvalidChunkIndex, wire.StatusInvalidChunkIndex},
		{"chunk size", binary.ErrChunkTooLarge, wire.StatusInvalidChunkIndex},
		{"binary size", binary.ErrInvalidSize, wire.StatusBinaryUploadFailed},
		{"identifier", fqi.ErrInvalidIdentifier, wire.StatusInvalidIdentifier},
		{"metadata", ErrInvalidMetadata, wire.StatusInvalidMetadata},
		{"unsupported", ErrNotObservable, wire.StatusUnsupported},
		{"other", errors.New("boom"), wire.StatusUndefinedExecutionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
