package interaction

import (
	"context"
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

type metadataKey struct{}

// Metadata holds the decoded metadata of a call, keyed by FQI.
type Metadata map[string]any

// Get returns the value of the metadata with the given identifier.
func (m Metadata) Get(id fqi.FQI) (any, bool) {
	v, ok := m[id.Key()]
	return v, ok
}

// MetadataFromContext returns the metadata of the call a handler serves.
func MetadataFromContext(ctx context.Context) Metadata {
	md, _ := ctx.Value(metadataKey{}).(Metadata)
	return md
}

func withMetadata(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// decodeMetadata checks that every metadata the target requires is present
// and decodes it. Metadata the server does not know is rejected.
func decodeMetadata(ctx context.Context, reg *model.Registry, codec *datatype.Codec, target fqi.FQI, sent map[string]wire.Value) (Metadata, error) {
	byKey := make(map[string]wire.Value, len(sent))
	for text, v := range sent {
		id, err := fqi.Parse(text)
		if err != nil || id.Kind() != fqi.KindMetadata {
			return nil, fmt.Errorf("%w: %q is not a metadata identifier", ErrInvalidMetadata, text)
		}
		if _, ok := reg.Metadata(id); !ok {
			return nil, fmt.Errorf("%w: unknown metadata %s", ErrInvalidMetadata, id)
		}
		byKey[id.Key()] = v
	}

	md := make(Metadata)
	for _, m := range reg.RequiredMetadata(target) {
		v, ok := byKey[m.ID.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidMetadata, target, m.ID)
		}
		n, err := codec.ToNative(ctx, m.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, m.ID, err)
		}
		md[m.ID.Key()] = n
	}
	return md, nil
}
