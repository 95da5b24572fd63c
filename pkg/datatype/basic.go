package datatype

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

var kindValueTypes = map[native.Kind]wire.ValueType{
	native.KindBoolean:   wire.ValueBoolean,
	native.KindInteger:   wire.ValueInteger,
	native.KindReal:      wire.ValueReal,
	native.KindString:    wire.ValueString,
	native.KindBinary:    wire.ValueBinary,
	native.KindDate:      wire.ValueDate,
	native.KindTime:      wire.ValueTime,
	native.KindTimestamp: wire.ValueTimestamp,
}

func (b Basic) toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error) {
	want, ok := kindValueTypes[b.K]
	if !ok {
		return nil, fmt.Errorf("%s is not a basic type", b.K)
	}
	if v.Type != want {
		return nil, decodeErrorf(path, "expected %s, got %s", want, v.Type)
	}

	switch b.K {
	case native.KindBoolean:
		return v.Boolean, nil
	case native.KindInteger:
		return v.Integer, nil
	case native.KindReal:
		return v.Real, nil
	case native.KindString:
		return v.String, nil
	case native.KindBinary:
		return c.resolveBinary(ctx, v, path)
	case native.KindDate:
		if v.Date == nil {
			return nil, decodeErrorf(path, "missing date")
		}
		d := v.Date.Native()
		if err := d.Validate(); err != nil {
			return nil, decodeErrorf(path, "%v", err)
		}
		return d, nil
	case native.KindTime:
		if v.Time == nil {
			return nil, decodeErrorf(path, "missing time")
		}
		t := v.Time.Native()
		if err := t.Validate(); err != nil {
			return nil, decodeErrorf(path, "%v", err)
		}
		return t, nil
	default: // native.KindTimestamp
		if v.Timestamp == nil {
			return nil, decodeErrorf(path, "missing timestamp")
		}
		ts := v.Timestamp.Native()
		if err := ts.Validate(); err != nil {
			return nil, decodeErrorf(path, "%v", err)
		}
		return ts, nil
	}
}

func (c *Codec) resolveBinary(ctx context.Context, v wire.Value, path string) (any, error) {
	if v.BinaryRef == "" {
		if v.Bytes == nil {
			return []byte{}, nil
		}
		return v.Bytes, nil
	}
	if v.Bytes != nil {
		return nil, decodeErrorf(path, "binary has both inline bytes and a reference")
	}
	id, err := uuid.Parse(v.BinaryRef)
	if err != nil {
		return nil, decodeErrorf(path, "invalid binary reference %q", v.BinaryRef)
	}
	if c.Store == nil {
		return nil, fail(path, ErrNoBinaryStore)
	}
	data, err := c.Store.Await(ctx, id, binaryOwner(ctx))
	if err != nil {
		return nil, fail(path, err)
	}
	return data, nil
}

func (b Basic) toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error) {
	switch b.K {
	case native.KindBoolean:
		if x, ok := v.(bool); ok {
			return wire.Bool(x), nil
		}
	case native.KindInteger:
		if x, ok := asInt64(v); ok {
			return wire.Int(x), nil
		}
	case native.KindReal:
		if x, ok := asFloat64(v); ok {
			return wire.Real(x), nil
		}
	case native.KindString:
		if x, ok := v.(string); ok {
			return wire.Str(x), nil
		}
	case native.KindBinary:
		if x, ok := v.([]byte); ok {
			return c.encodeBinary(ctx, x, path)
		}
	case native.KindDate:
		if x, ok := v.(native.Date); ok {
			if err := x.Validate(); err != nil {
				return wire.Value{}, typeErrorf(path, "%v", err)
			}
			return wire.DateOf(x), nil
		}
	case native.KindTime:
		if x, ok := v.(native.Time); ok {
			if err := x.Validate(); err != nil {
				return wire.Value{}, typeErrorf(path, "%v", err)
			}
			return wire.TimeOf(x), nil
		}
	case native.KindTimestamp:
		if x, ok := v.(native.Timestamp); ok {
			if err := x.Validate(); err != nil {
				return wire.Value{}, typeErrorf(path, "%v", err)
			}
			return wire.TimestampOf(x), nil
		}
	default:
		return wire.Value{}, fmt.Errorf("%s is not a basic type", b.K)
	}
	return wire.Value{}, typeErrorf(path, "expected %s, got %T", b.K, v)
}

func (c *Codec) encodeBinary(ctx context.Context, data []byte, path string) (wire.Value, error) {
	if c.Store == nil || len(data) <= c.threshold() {
		return wire.Bytes(data), nil
	}
	id, err := c.Store.Publish(ctx, data)
	if err != nil {
		return wire.Value{}, fail(path, err)
	}
	return wire.BinaryRef(id.String()), nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
