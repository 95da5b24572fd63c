package inspect

import (
	"context"
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Caller is the part of a client the remote inspector needs.
// This is implemented by interaction.Client.
type Caller interface {
	GetProperty(ctx context.Context, target string, opts ...interaction.CallOption) (wire.Value, error)
	Invoke(ctx context.Context, target string, params map[string]wire.Value, opts ...interaction.CallOption) (*wire.InvokeResponsePayload, error)
	SubscribeExecution(ctx context.Context, executionUUID string) (*interaction.Stream[wire.ExecutionInfoPayload], error)
	Result(ctx context.Context, executionUUID string) (map[string]wire.Value, error)
	DownloadBinary(ctx context.Context, binaryUUID string, chunkSize int) ([]byte, error)
}

// Progress receives the state of an observable command while it runs.
type Progress func(info wire.ExecutionInfoPayload)

// RemoteInspector reads properties and runs commands on a server, resolving
// binary references in the results.
type RemoteInspector struct {
	caller Caller
}

// NewRemoteInspector creates a new remote inspector for the given client.
func NewRemoteInspector(caller Caller) *RemoteInspector {
	return &RemoteInspector{caller: caller}
}

// ReadProperty reads a property. A value sent as binary reference is
// downloaded.
func (r *RemoteInspector) ReadProperty(ctx context.Context, id fqi.FQI, opts ...interaction.CallOption) (wire.Value, error) {
	if id.Kind() != fqi.KindProperty {
		return wire.Value{}, fmt.Errorf("%w: %s is not a property", ErrInvalidPath, id)
	}
	v, err := r.caller.GetProperty(ctx, id.String(), opts...)
	if err != nil {
		return wire.Value{}, err
	}
	return r.resolve(ctx, v)
}

// Call runs a command to completion and returns its responses. For
// observable commands, progress (if not nil) sees every state update.
func (r *RemoteInspector) Call(ctx context.Context, id fqi.FQI, params map[string]wire.Value, progress Progress, opts ...interaction.CallOption) (map[string]wire.Value, error) {
	if id.Kind() != fqi.KindCommand {
		return nil, fmt.Errorf("%w: %s is not a command", ErrInvalidPath, id)
	}
	res, err := r.caller.Invoke(ctx, id.String(), params, opts...)
	if err != nil {
		return nil, err
	}

	responses := res.Responses
	if res.Confirmation != nil {
		responses, err = r.await(ctx, res.Confirmation.ExecutionUUID, progress)
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]wire.Value, len(responses))
	for k, v := range responses {
		if out[k], err = r.resolve(ctx, v); err != nil {
			return nil, fmt.Errorf("response %s: %w", k, err)
		}
	}
	return out, nil
}

// await follows an execution until it finishes and fetches the result.
func (r *RemoteInspector) await(ctx context.Context, executionUUID string, progress Progress) (map[string]wire.Value, error) {
	updates, err := r.caller.SubscribeExecution(ctx, executionUUID)
	if err != nil {
		return nil, err
	}
	for info := range updates.Values() {
		if progress != nil {
			progress(info)
		}
	}
	if err := updates.Err(); err != nil {
		return nil, err
	}
	return r.caller.Result(ctx, executionUUID)
}

// resolve downloads binary references, also inside lists and structures.
func (r *RemoteInspector) resolve(ctx context.Context, v wire.Value) (wire.Value, error) {
	switch v.Type {
	case wire.ValueBinary:
		if v.BinaryRef == "" {
			return v, nil
		}
		data, err := r.caller.DownloadBinary(ctx, v.BinaryRef, 0)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.Bytes(data), nil
	case wire.ValueList:
		elems := make([]wire.Value, len(v.Elements))
		for i, e := range v.Elements {
			resolved, err := r.resolve(ctx, e)
			if err != nil {
				return wire.Value{}, err
			}
			elems[i] = resolved
		}
		return wire.List(elems...), nil
	case wire.ValueStructure:
		fields := make(map[string]wire.Value, len(v.Fields))
		for k, e := range v.Fields {
			resolved, err := r.resolve(ctx, e)
			if err != nil {
				return wire.Value{}, err
			}
			fields[k] = resolved
		}
		return wire.Struct(fields), nil
	default:
		return v, nil
	}
}

// FetchRegistry builds a registry of the server's features from their
// definitions. The registry has no handlers; it serves to resolve paths and
// parse parameters on the client side.
func (r *RemoteInspector) FetchRegistry(ctx context.Context) (*model.Registry, error) {
	list, err := r.ReadProperty(ctx, core.FeatureID.Property("ImplementedFeatures"))
	if err != nil {
		return nil, fmt.Errorf("read implemented features: %w", err)
	}

	b := model.NewBuilder()
	for _, v := range list.Elements {
		responses, err := r.Call(ctx, core.FeatureID.Command("GetFeatureDefinition"),
			map[string]wire.Value{"FeatureIdentifier": wire.Str(v.String)}, nil)
		if err != nil {
			return nil, fmt.Errorf("feature definition of %s: %w", v.String, err)
		}
		def, err := featuredef.Parse([]byte(responses["FeatureDefinition"].String))
		if err != nil {
			return nil, fmt.Errorf("feature definition of %s: %w", v.String, err)
		}
		b.AddFeature(def)
	}
	return b.Build()
}
