package constraint

import (
	"fmt"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// Set restricts a value to an enumerated list of allowed values.
type Set struct {
	Values []any
}

func (c Set) Kind() Kind { return KindSet }

func (c Set) Supports(base native.Kind) bool {
	if !oneOf(base, native.KindString, native.KindInteger, native.KindReal,
		native.KindDate, native.KindTime, native.KindTimestamp) || len(c.Values) == 0 {
		return false
	}
	for _, v := range c.Values {
		if native.KindOf(v) != base {
			return false
		}
	}
	return true
}

func (c Set) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = describe(v)
	}
	return fmt.Sprintf("Set(%s)", strings.Join(parts, ", "))
}

func (c Set) Validate(v any) bool {
	for _, allowed := range c.Values {
		if equal(v, allowed) {
			return true
		}
	}
	return false
}

// equal compares scalar natives; composite values never match.
func equal(a, b any) bool {
	switch x := a.(type) {
	case string, int64, float64, bool, native.Date, native.Time, native.Timestamp:
		return x == b
	default:
		return false
	}
}
