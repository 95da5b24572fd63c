package datatype

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// stubStore is a mock BinaryStore.
type stubStore struct {
	mock.Mock
}

func (s *stubStore) Await(ctx context.Context, id uuid.UUID, owner string) ([]byte, error) {
	args := s.Called(ctx, id, owner)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (s *stubStore) Publish(ctx context.Context, data []byte) (uuid.UUID, error) {
	args := s.Called(ctx, data)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func point() Structure {
	return Structure{Fields: []Field{
		{Identifier: "X", Type: Real},
		{Identifier: "Y", Type: Real},
		{Identifier: "Label", Type: String},
	}}
}

func TestRoundTrip(t *testing.T) {
	zone := native.Timezone{Hours: 1}
	tests := []struct {
		name  string
		typ   Type
		value any
	}{
		{"boolean", Boolean, true},
		{"integer", Integer, int64(-42)},
		{"real", Real, 3.25},
		{"string", String, "héllo"},
		{"binary", Binary, []byte{0, 1, 2}},
		{"empty binary", Binary, []byte{}},
		{"date", Date, native.Date{Year: 2024, Month: 12, Day: 31, Timezone: zone}},
		{"time", Time, native.Time{Hour: 13, Minute: 5, Second: 9, Millisecond: 120, Timezone: zone}},
		{"timestamp", Timestamp, native.Timestamp{Year: 2020, Month: 2, Day: 29, Hour: 1, Timezone: zone}},
		{"list", List{Elem: Integer}, []any{int64(1), int64(2)}},
		{"empty list", List{Elem: String}, []any{}},
		{"structure", point(), map[string]any{"X": 1.0, "Y": -2.0, "Label": "p"}},
		{"list of structures", List{Elem: point()}, []any{
			map[string]any{"X": 1.0, "Y": 2.0, "Label": "a"},
		}},
		{"defined", &Defined{ID: fqi.MustParse("org.silastandard/examples/Test/v1/DataType/Point"), Type: point()},
			map[string]any{"X": 0.0, "Y": 0.0, "Label": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ToMessage(tt.typ, tt.value)
			require.NoError(t, err)

			// Through the CBOR codec as well.
			data, err := wire.Marshal(msg)
			require.NoError(t, err)
			var decoded wire.Value
			require.NoError(t, wire.Unmarshal(data, &decoded))

			got, err := ToNative(tt.typ, decoded)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestToMessageConvenienceTypes(t *testing.T) {
	msg, err := ToMessage(List{Elem: Integer}, []int{1, 2, 3})
	require.NoError(t, err)
	got, err := ToNative(List{Elem: Integer}, msg)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
}

func TestConstrainedRealRejectsNaN(t *testing.T) {
	typ, err := NewConstrained(Real,
		constraint.MinimalValue{Bound: 0.0},
		constraint.MaximalValue{Bound: 100.0},
	)
	require.NoError(t, err)

	got, err := ToNative(typ, wire.Real(50))
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	_, err = ToNative(typ, wire.Real(math.NaN()))
	var ve *constraint.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestConstrainedIntegerBounds(t *testing.T) {
	typ, err := NewConstrained(Integer,
		constraint.MinimalValue{Bound: int64(0)},
		constraint.MaximalValue{Bound: int64(100), Exclusive: true},
	)
	require.NoError(t, err)

	msg, err := ToMessage(typ, int64(5))
	require.NoError(t, err)
	got, err := ToNative(typ, msg)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	for _, bad := range []int64{150, 100} {
		_, err := ToNative(typ, wire.Int(bad))
		require.Error(t, err)
		var ve *constraint.ValidationError
		require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
		assert.Equal(t, constraint.KindMaximalValue, ve.Constraint)
	}

	_, err = ToNative(typ, wire.Int(-1))
	var ve *constraint.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, constraint.KindMinimalValue, ve.Constraint)

	// Encoding refuses invalid values as well.
	_, err = ToMessage(typ, 100)
	assert.ErrorIs(t, err, constraint.ErrValidation)
}

func TestConstrainedListElementCount(t *testing.T) {
	typ, err := NewConstrained(List{Elem: String}, constraint.ElementCount{Value: 3})
	require.NoError(t, err)

	_, err = ToNative(typ, wire.List(wire.Str("a"), wire.Str("b"), wire.Str("c")))
	assert.NoError(t, err)

	_, err = ToNative(typ, wire.List(wire.Str("a"), wire.Str("b")))
	var ve *constraint.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, constraint.KindElementCount, ve.Constraint)
}

func TestConstrainedBaseDecodesFirst(t *testing.T) {
	typ, err := NewConstrained(String, constraint.MaximalLength{Value: 2})
	require.NoError(t, err)

	_, err = ToNative(typ, wire.Int(1))
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, constraint.ErrValidation)
}

func TestNewConstrainedRejectsInapplicable(t *testing.T) {
	_, err := NewConstrained(Boolean, constraint.MaximalLength{Value: 1})
	assert.ErrorIs(t, err, constraint.ErrNotApplicable)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		msg  wire.Value
		path string
	}{
		{"wrong variant", Integer, wire.Str("1"), ""},
		{"missing field", point(), wire.Struct(map[string]wire.Value{"X": wire.Real(1), "Y": wire.Real(1)}), ""},
		{"unknown field", point(), wire.Struct(map[string]wire.Value{
			"X": wire.Real(1), "Y": wire.Real(1), "Label": wire.Str(""), "Z": wire.Real(0),
		}), ""},
		{"nested element", List{Elem: point()}, wire.List(wire.Struct(map[string]wire.Value{
			"X": wire.Str("bad"), "Y": wire.Real(1), "Label": wire.Str(""),
		})), "[0].X"},
		{"invalid date", Date, wire.Value{Type: wire.ValueDate, Date: &wire.DateValue{Year: 2023, Month: 2, Day: 30}}, ""},
		{"missing time", Time, wire.Value{Type: wire.ValueTime}, ""},
		{"bad binary ref", Binary, wire.BinaryRef("not-a-uuid"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToNative(tt.typ, tt.msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)

			var pe *PathError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.path, pe.Path)
		})
	}
}

func TestTypeErrors(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value any
	}{
		{"string for integer", Integer, "5"},
		{"int for real", Real, 5},
		{"map for list", List{Elem: String}, map[string]any{}},
		{"bytes for list", List{Elem: Integer}, []byte{1}},
		{"missing field", point(), map[string]any{"X": 1.0}},
		{"invalid timestamp", Timestamp, native.Timestamp{Year: 2024, Month: 13, Day: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToMessage(tt.typ, tt.value)
			assert.ErrorIs(t, err, ErrType)
		})
	}
}

func TestBinaryReference(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	payload := bytes.Repeat([]byte{0xAB}, 64)

	store := &stubStore{}
	store.On("Await", ctx, id, "").Return(payload, nil).Once()
	store.On("Publish", ctx, payload).Return(id, nil).Once()

	codec := NewCodec(store)
	codec.InlineThreshold = 16

	msg, err := codec.ToMessage(ctx, Binary, payload)
	require.NoError(t, err)
	assert.Equal(t, id.String(), msg.BinaryRef)
	assert.Nil(t, msg.Bytes)

	got, err := codec.ToNative(ctx, Binary, msg)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Small binaries stay inline.
	msg, err = codec.ToMessage(ctx, Binary, []byte("tiny"))
	require.NoError(t, err)
	assert.Empty(t, msg.BinaryRef)

	store.AssertExpectations(t)
}

func TestBinaryReferenceRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := binary.NewRegistry(binary.DefaultConfig())
	t.Cleanup(reg.Close)

	codec := NewCodec(reg)
	codec.InlineThreshold = 16
	payload := bytes.Repeat([]byte{0xCD}, 1024)
	typ := List{Elem: Binary}

	msg, err := codec.ToMessage(ctx, typ, []any{payload, []byte("tiny")})
	require.NoError(t, err)
	require.Len(t, msg.Elements, 2)
	assert.NotEmpty(t, msg.Elements[0].BinaryRef)
	assert.Empty(t, msg.Elements[1].BinaryRef)

	got, err := codec.ToNative(ctx, typ, msg)
	require.NoError(t, err)
	assert.Equal(t, []any{payload, []byte("tiny")}, got)
	assert.Equal(t, 0, reg.Len())

	// The reference is consumed by the first decode.
	_, err = codec.ToNative(ctx, typ, msg)
	assert.ErrorIs(t, err, binary.ErrBinaryUnknown)
}

func TestBinaryParameterOwner(t *testing.T) {
	ctx := context.Background()
	cmd := fqi.MustParse("org.silastandard/examples/BinaryTransferTest/v1/Command/EchoBinaryValue")
	params := Structure{Fields: []Field{
		{Identifier: "BinaryValue", Type: Binary},
		{Identifier: "Other", Type: Binary},
	}}
	reg := binary.NewRegistry(binary.DefaultConfig())
	t.Cleanup(reg.Close)
	codec := NewCodec(reg)

	upload := func(owner fqi.FQI, data []byte) string {
		info, err := reg.CreateUpload(owner.String(), uint64(len(data)), 0)
		require.NoError(t, err)
		_, err = reg.AppendChunk(info.ID, 0, data)
		require.NoError(t, err)
		return info.ID.String()
	}

	// Uploads resolve for the parameter they were created for.
	msg := wire.Struct(map[string]wire.Value{
		"BinaryValue": wire.BinaryRef(upload(cmd.Parameter("BinaryValue"), []byte("first"))),
		"Other":       wire.BinaryRef(upload(cmd.Parameter("Other"), []byte("second"))),
	})
	got, err := codec.ToNative(WithParameters(ctx, cmd), params, msg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"BinaryValue": []byte("first"), "Other": []byte("second")}, got)

	// An upload for one parameter cannot be used for another.
	misplaced := upload(cmd.Parameter("Other"), []byte("third"))
	msg = wire.Struct(map[string]wire.Value{
		"BinaryValue": wire.BinaryRef(misplaced),
		"Other":       wire.Bytes([]byte("inline")),
	})
	_, err = codec.ToNative(WithParameters(ctx, cmd), params, msg)
	assert.ErrorIs(t, err, binary.ErrBinaryUnknown)
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "BinaryValue", pe.Path)
	assert.Equal(t, 1, reg.Len())
}

func TestBinaryReferenceWithoutStore(t *testing.T) {
	_, err := ToNative(Binary, wire.BinaryRef(uuid.NewString()))
	assert.ErrorIs(t, err, ErrNoBinaryStore)
}

func TestBinaryAwaitFailure(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	unknown := errors.New("binary unknown")

	store := &stubStore{}
	store.On("Await", ctx, id, "").Return(nil, unknown)

	_, err := NewCodec(store).ToNative(ctx, List{Elem: Binary}, wire.List(wire.BinaryRef(id.String())))
	assert.ErrorIs(t, err, unknown)
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "[0]", pe.Path)
}

func TestTypeString(t *testing.T) {
	typ, err := NewConstrained(List{Elem: String}, constraint.ElementCount{Value: 3})
	require.NoError(t, err)
	assert.Equal(t, "Constrained<List<String>>[ElementCount(3)]", typ.String())
	assert.Equal(t, "Structure{X: Real, Y: Real, Label: String}", point().String())
}
