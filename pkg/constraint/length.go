package constraint

import (
	"fmt"
	"unicode/utf8"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// lengthOf counts code points for strings and bytes for binaries.
func lengthOf(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []byte:
		return len(x), true
	default:
		return 0, false
	}
}

func supportsLength(base native.Kind) bool {
	return oneOf(base, native.KindString, native.KindBinary)
}

// Length requires an exact length.
type Length struct {
	Value int
}

func (c Length) Kind() Kind                     { return KindLength }
func (c Length) Supports(base native.Kind) bool { return supportsLength(base) }
func (c Length) String() string                 { return fmt.Sprintf("Length(%d)", c.Value) }

func (c Length) Validate(v any) bool {
	n, ok := lengthOf(v)
	return ok && n == c.Value
}

// MinimalLength requires a length of at least Value.
type MinimalLength struct {
	Value int
}

func (c MinimalLength) Kind() Kind                     { return KindMinimalLength }
func (c MinimalLength) Supports(base native.Kind) bool { return supportsLength(base) }
func (c MinimalLength) String() string                 { return fmt.Sprintf("MinimalLength(%d)", c.Value) }

func (c MinimalLength) Validate(v any) bool {
	n, ok := lengthOf(v)
	return ok && n >= c.Value
}

// MaximalLength requires a length of at most Value.
type MaximalLength struct {
	Value int
}

func (c MaximalLength) Kind() Kind                     { return KindMaximalLength }
func (c MaximalLength) Supports(base native.Kind) bool { return supportsLength(base) }
func (c MaximalLength) String() string                 { return fmt.Sprintf("MaximalLength(%d)", c.Value) }

func (c MaximalLength) Validate(v any) bool {
	n, ok := lengthOf(v)
	return ok && n <= c.Value
}

// ElementCount requires a list with exactly Value elements.
type ElementCount struct {
	Value int
}

func (c ElementCount) Kind() Kind                     { return KindElementCount }
func (c ElementCount) Supports(base native.Kind) bool { return base == native.KindList }
func (c ElementCount) String() string                 { return fmt.Sprintf("ElementCount(%d)", c.Value) }

func (c ElementCount) Validate(v any) bool {
	l, ok := v.([]any)
	return ok && len(l) == c.Value
}

// MinimalElementCount requires a list with at least Value elements.
type MinimalElementCount struct {
	Value int
}

func (c MinimalElementCount) Kind() Kind                     { return KindMinimalElementCount }
func (c MinimalElementCount) Supports(base native.Kind) bool { return base == native.KindList }
func (c MinimalElementCount) String() string {
	return fmt.Sprintf("MinimalElementCount(%d)", c.Value)
}

func (c MinimalElementCount) Validate(v any) bool {
	l, ok := v.([]any)
	return ok && len(l) >= c.Value
}

// MaximalElementCount requires a list with at most Value elements.
type MaximalElementCount struct {
	Value int
}

func (c MaximalElementCount) Kind() Kind                     { return KindMaximalElementCount }
func (c MaximalElementCount) Supports(base native.Kind) bool { return base == native.KindList }
func (c MaximalElementCount) String() string {
	return fmt.Sprintf("MaximalElementCount(%d)", c.Value)
}

func (c MaximalElementCount) Validate(v any) bool {
	l, ok := v.([]any)
	return ok && len(l) <= c.Value
}
