package datatype

import (
	"context"
	"fmt"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Type is a data type. The set of implementations is closed.
type Type interface {
	// Kind returns the native kind values of this type have.
	Kind() native.Kind

	// String describes the type, e.g. "List<String>".
	String() string

	toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error)
	toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error)
}

// Basic is one of the eight basic types.
type Basic struct {
	K native.Kind
}

// Basic types.
var (
	Boolean   = Basic{K: native.KindBoolean}
	Integer   = Basic{K: native.KindInteger}
	Real      = Basic{K: native.KindReal}
	String    = Basic{K: native.KindString}
	Binary    = Basic{K: native.KindBinary}
	Date      = Basic{K: native.KindDate}
	Time      = Basic{K: native.KindTime}
	Timestamp = Basic{K: native.KindTimestamp}
)

func (b Basic) Kind() native.Kind { return b.K }
func (b Basic) String() string    { return b.K.String() }

// List is a homogeneous list.
type List struct {
	Elem Type
}

func (l List) Kind() native.Kind { return native.KindList }
func (l List) String() string    { return "List<" + l.Elem.String() + ">" }

// Field is a named element of a Structure.
type Field struct {
	Identifier  string
	DisplayName string
	Description string
	Type        Type
}

// Structure is an ordered set of named fields. Every field is required.
type Structure struct {
	Fields []Field
}

func (s Structure) Kind() native.Kind { return native.KindStructure }

func (s Structure) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Identifier + ": " + f.Type.String()
	}
	return "Structure{" + strings.Join(parts, ", ") + "}"
}

// Field returns the field with the given identifier.
func (s Structure) Field(id string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Identifier == id {
			return f, true
		}
	}
	return Field{}, false
}

// Constrained is a base type with validation rules. Constraints are checked
// in order after the base value decodes, and before a value is encoded.
type Constrained struct {
	Base        Type
	Constraints []constraint.Constraint
}

// NewConstrained builds a constrained type and checks that every constraint
// applies to the base.
func NewConstrained(base Type, cs ...constraint.Constraint) (Constrained, error) {
	if err := constraint.CheckApplicable(base.Kind(), cs...); err != nil {
		return Constrained{}, err
	}
	return Constrained{Base: base, Constraints: cs}, nil
}

func (c Constrained) Kind() native.Kind { return c.Base.Kind() }

func (c Constrained) String() string {
	parts := make([]string, len(c.Constraints))
	for i, cs := range c.Constraints {
		parts[i] = cs.String()
	}
	return fmt.Sprintf("Constrained<%s>[%s]", c.Base, strings.Join(parts, ", "))
}

// Defined is a named data type of a feature. Type is set once when the
// feature model resolves the definition.
type Defined struct {
	ID   fqi.FQI
	Type Type
}

func (d *Defined) Kind() native.Kind {
	if d.Type == nil {
		return native.KindInvalid
	}
	return d.Type.Kind()
}

func (d *Defined) String() string { return d.ID.Identifier() }

func (d *Defined) toNative(ctx context.Context, c *Codec, v wire.Value, path string) (any, error) {
	if d.Type == nil {
		return nil, fmt.Errorf("unresolved data type %s", d.ID)
	}
	return d.Type.toNative(ctx, c, v, path)
}

func (d *Defined) toMessage(ctx context.Context, c *Codec, v any, path string) (wire.Value, error) {
	if d.Type == nil {
		return wire.Value{}, fmt.Errorf("unresolved data type %s", d.ID)
	}
	return d.Type.toMessage(ctx, c, v, path)
}

// Underlying strips Defined wrappers.
func Underlying(t Type) Type {
	for {
		d, ok := t.(*Defined)
		if !ok || d.Type == nil {
			return t
		}
		t = d.Type
	}
}
