package constraint

import (
	"fmt"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// UnitComponent is one SI base unit with its exponent.
type UnitComponent struct {
	SIUnit   string
	Exponent int
}

// Unit annotates a numeric value with a physical unit. Conversion to SI is
// si = value*Factor + Offset. It never rejects a value.
type Unit struct {
	Label      string
	Factor     float64
	Offset     float64
	Components []UnitComponent
}

func (c Unit) Kind() Kind { return KindUnit }

func (c Unit) Supports(base native.Kind) bool {
	return oneOf(base, native.KindInteger, native.KindReal)
}

func (c Unit) String() string     { return fmt.Sprintf("Unit(%s)", c.Label) }
func (c Unit) Validate(v any) bool { return true }

// ToSI converts a value expressed in this unit to SI base units.
func (c Unit) ToSI(v float64) float64 {
	return v*c.Factor + c.Offset
}

// ContentTypeParameter is one media type parameter such as charset=utf-8.
type ContentTypeParameter struct {
	Attribute string
	Value     string
}

// ContentType annotates a string or binary with a media type. It never
// rejects a value.
type ContentType struct {
	Type       string
	Subtype    string
	Parameters []ContentTypeParameter
}

func (c ContentType) Kind() Kind { return KindContentType }

func (c ContentType) Supports(base native.Kind) bool {
	return oneOf(base, native.KindString, native.KindBinary)
}

func (c ContentType) Validate(v any) bool { return true }

// MediaType renders the media type, e.g. "text/plain; charset=utf-8".
func (c ContentType) MediaType() string {
	var b strings.Builder
	b.WriteString(c.Type)
	b.WriteByte('/')
	b.WriteString(c.Subtype)
	for _, p := range c.Parameters {
		fmt.Fprintf(&b, "; %s=%s", p.Attribute, p.Value)
	}
	return b.String()
}

func (c ContentType) String() string { return fmt.Sprintf("ContentType(%s)", c.MediaType()) }
