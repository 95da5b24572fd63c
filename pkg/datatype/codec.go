package datatype

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// DefaultInlineThreshold is the largest binary sent inline (2 MiB).
const DefaultInlineThreshold = 2 << 20

// Marshalling errors.
var (
	// ErrDecode indicates a structurally malformed message: wrong variant,
	// missing or unknown structure field, invalid temporal value.
	ErrDecode = errors.New("decode error")

	// ErrType indicates a native value whose shape does not match its type.
	ErrType = errors.New("type error")

	// ErrNoBinaryStore indicates a binary reference with no store to resolve it.
	ErrNoBinaryStore = errors.New("binary transfer not available")
)

// PathError locates a marshalling error inside a nested value.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

func fail(path string, err error) error {
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Path: path, Err: err}
}

func decodeErrorf(path, format string, args ...any) error {
	return fail(path, fmt.Errorf("%w: "+format, append([]any{ErrDecode}, args...)...))
}

func typeErrorf(path, format string, args ...any) error {
	return fail(path, fmt.Errorf("%w: "+format, append([]any{ErrType}, args...)...))
}

// BinaryStore resolves and creates large binaries.
type BinaryStore interface {
	// Await blocks until the binary id is complete and returns its bytes.
	// A non-empty owner restricts id to uploads created for that parameter.
	Await(ctx context.Context, id uuid.UUID, owner string) ([]byte, error)

	// Publish stores data for download and returns its id.
	Publish(ctx context.Context, data []byte) (uuid.UUID, error)
}

type parametersKey struct{}

type ownerKey struct{}

// WithParameters marks ctx for decoding the parameters of cmd. Binary
// references in each top-level field then resolve only uploads created for
// that parameter.
func WithParameters(ctx context.Context, cmd fqi.FQI) context.Context {
	return context.WithValue(ctx, parametersKey{}, cmd)
}

func binaryOwner(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Codec converts between native values and messages.
type Codec struct {
	// Store resolves binary references. Without a store, references fail
	// and large binaries are sent inline.
	Store BinaryStore

	// InlineThreshold is the largest binary sent inline. Zero selects
	// DefaultInlineThreshold.
	InlineThreshold int
}

// NewCodec creates a codec backed by store.
func NewCodec(store BinaryStore) *Codec {
	return &Codec{Store: store, InlineThreshold: DefaultInlineThreshold}
}

var plain = &Codec{}

// ToNative decodes v as type t.
func (c *Codec) ToNative(ctx context.Context, t Type, v wire.Value) (any, error) {
	return t.toNative(ctx, c, v, "")
}

// ToMessage encodes the native value v of type t.
func (c *Codec) ToMessage(ctx context.Context, t Type, v any) (wire.Value, error) {
	return t.toMessage(ctx, c, v, "")
}

// ToNative decodes v as type t without binary transfer support.
func ToNative(t Type, v wire.Value) (any, error) {
	return plain.ToNative(context.Background(), t, v)
}

// ToMessage encodes v as type t without binary transfer support.
func ToMessage(t Type, v any) (wire.Value, error) {
	return plain.ToMessage(context.Background(), t, v)
}

func (c *Codec) threshold() int {
	if c.InlineThreshold <= 0 {
		return DefaultInlineThreshold
	}
	return c.InlineThreshold
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

// List

func (l List) toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error) {
	if v.Type != wire.ValueList {
		return nil, decodeErrorf(path, "expected List, got %s", v.Type)
	}
	out := make([]any, len(v.Elements))
	for i, e := range v.Elements {
		n, err := l.Elem.toNative(ctx, c, e, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (l List) toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error) {
	elems, ok := v.([]any)
	if !ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
			return wire.Value{}, typeErrorf(path, "expected list, got %T", v)
		}
		elems = make([]any, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i).Interface()
		}
	}
	out := make([]wire.Value, len(elems))
	for i, e := range elems {
		m, err := l.Elem.toMessage(ctx, c, e, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return wire.Value{}, err
		}
		out[i] = m
	}
	return wire.List(out...), nil
}

// Structure

func (s Structure) toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error) {
	if v.Type != wire.ValueStructure {
		return nil, decodeErrorf(path, "expected Structure, got %s", v.Type)
	}
	for id := range v.Fields {
		if _, ok := s.Field(id); !ok {
			return nil, decodeErrorf(path, "unknown field %q", id)
		}
	}
	cmd, params := ctx.Value(parametersKey{}).(fqi.FQI)
	params = params && path == ""
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		fv, ok := v.Fields[f.Identifier]
		if !ok {
			return nil, decodeErrorf(path, "missing field %q", f.Identifier)
		}
		fctx := ctx
		if params {
			fctx = context.WithValue(ctx, ownerKey{}, cmd.Parameter(f.Identifier).String())
		}
		n, err := f.Type.toNative(fctx, c, fv, join(path, f.Identifier))
		if err != nil {
			return nil, err
		}
		out[f.Identifier] = n
	}
	return out, nil
}

func (s Structure) toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return wire.Value{}, typeErrorf(path, "expected structure, got %T", v)
	}
	for id := range m {
		if _, ok := s.Field(id); !ok {
			return wire.Value{}, typeErrorf(path, "unknown field %q", id)
		}
	}
	fields := make(map[string]wire.Value, len(s.Fields))
	for _, f := range s.Fields {
		fv, ok := m[f.Identifier]
		if !ok {
			return wire.Value{}, typeErrorf(path, "missing field %q", f.Identifier)
		}
		msg, err := f.Type.toMessage(ctx, c, fv, join(path, f.Identifier))
		if err != nil {
			return wire.Value{}, err
		}
		fields[f.Identifier] = msg
	}
	return wire.Struct(fields), nil
}

// Constrained

func (ct Constrained) toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error) {
	n, err := ct.Base.toNative(ctx, c, v, path)
	if err != nil {
		return nil, err
	}
	if err := constraint.Check(n, ct.Constraints...); err != nil {
		return nil, fail(path, err)
	}
	return n, nil
}

func (ct Constrained) toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error) {
	// Normalise first so constraints see the canonical native form.
	n, err := normalise(ct.Base.Kind(), v)
	if err != nil {
		return wire.Value{}, fail(path, err)
	}
	if err := constraint.Check(n, ct.Constraints...); err != nil {
		return wire.Value{}, fail(path, err)
	}
	return ct.Base.toMessage(ctx, c, n, path)
}

// normalise converts convenience Go types to the native form of kind.
// Values of other kinds pass through unchanged.
func normalise(kind native.Kind, v any) (any, error) {
	switch kind {
	case native.KindInteger:
		if i, ok := asInt64(v); ok {
			return i, nil
		}
	case native.KindReal:
		if f, ok := asFloat64(v); ok {
			return f, nil
		}
	case native.KindList:
		if _, ok := v.([]any); ok {
			return v, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			out := make([]any, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).Interface()
			}
			return out, nil
		}
	}
	return v, nil
}
