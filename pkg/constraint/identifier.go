package constraint

import (
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/native"
)

// FullyQualifiedIdentifier requires a string to be a valid FQI of the given
// node kind.
type FullyQualifiedIdentifier struct {
	Identifier fqi.Kind
}

func (c FullyQualifiedIdentifier) Kind() Kind { return KindFullyQualifiedIdentifier }

func (c FullyQualifiedIdentifier) Supports(base native.Kind) bool {
	return base == native.KindString && c.Identifier != fqi.KindUnknown
}

func (c FullyQualifiedIdentifier) String() string {
	return fmt.Sprintf("FullyQualifiedIdentifier(%s)", c.Identifier)
}

func (c FullyQualifiedIdentifier) Validate(v any) bool {
	s, ok := v.(string)
	return ok && fqi.Validate(s, c.Identifier)
}
