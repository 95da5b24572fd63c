package constraint

import (
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/native"
)

func supportsBound(base native.Kind, bound any) bool {
	if !oneOf(base, native.KindInteger, native.KindReal, native.KindDate, native.KindTime, native.KindTimestamp) {
		return false
	}
	bk := native.KindOf(bound)
	if base == native.KindReal && bk == native.KindInteger {
		return true
	}
	return bk == base
}

// MinimalValue is a lower bound, inclusive unless Exclusive is set.
type MinimalValue struct {
	Bound     any
	Exclusive bool
}

func (c MinimalValue) Kind() Kind                     { return KindMinimalValue }
func (c MinimalValue) Supports(base native.Kind) bool { return supportsBound(base, c.Bound) }

func (c MinimalValue) String() string {
	if c.Exclusive {
		return fmt.Sprintf("MinimalValue(> %v)", c.Bound)
	}
	return fmt.Sprintf("MinimalValue(>= %v)", c.Bound)
}

func (c MinimalValue) Validate(v any) bool {
	r, ok := native.Compare(v, c.Bound)
	if !ok {
		return false
	}
	if c.Exclusive {
		return r > 0
	}
	return r >= 0
}

// MaximalValue is an upper bound, inclusive unless Exclusive is set.
type MaximalValue struct {
	Bound     any
	Exclusive bool
}

func (c MaximalValue) Kind() Kind                     { return KindMaximalValue }
func (c MaximalValue) Supports(base native.Kind) bool { return supportsBound(base, c.Bound) }

func (c MaximalValue) String() string {
	if c.Exclusive {
		return fmt.Sprintf("MaximalValue(< %v)", c.Bound)
	}
	return fmt.Sprintf("MaximalValue(<= %v)", c.Bound)
}

func (c MaximalValue) Validate(v any) bool {
	r, ok := native.Compare(v, c.Bound)
	if !ok {
		return false
	}
	if c.Exclusive {
		return r < 0
	}
	return r <= 0
}
