package constraint

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// Constraint errors.
var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrNotApplicable is returned at load time when a constraint is attached
	// to a base type it cannot check.
	ErrNotApplicable = errors.New("constraint not applicable to base type")

	// ErrInvalidConstraint is returned for malformed constraint parameters.
	ErrInvalidConstraint = errors.New("invalid constraint")
)

// Kind identifies a constraint type.
type Kind uint8

const (
	KindLength Kind = iota + 1
	KindMinimalLength
	KindMaximalLength
	KindSet
	KindPattern
	KindMinimalValue
	KindMaximalValue
	KindUnit
	KindContentType
	KindElementCount
	KindMinimalElementCount
	KindMaximalElementCount
	KindSchema
	KindFullyQualifiedIdentifier
)

var kindNames = map[Kind]string{
	KindLength:                   "Length",
	KindMinimalLength:            "MinimalLength",
	KindMaximalLength:            "MaximalLength",
	KindSet:                      "Set",
	KindPattern:                  "Pattern",
	KindMinimalValue:             "MinimalValue",
	KindMaximalValue:             "MaximalValue",
	KindUnit:                     "Unit",
	KindContentType:              "ContentType",
	KindElementCount:             "ElementCount",
	KindMinimalElementCount:      "MinimalElementCount",
	KindMaximalElementCount:      "MaximalElementCount",
	KindSchema:                   "Schema",
	KindFullyQualifiedIdentifier: "FullyQualifiedIdentifier",
}

// String returns the constraint name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Constraint is a validation rule attached to a base type.
// Validate must be deterministic and free of side effects.
type Constraint interface {
	// Kind returns the constraint type.
	Kind() Kind

	// Supports reports whether the constraint can be attached to base.
	Supports(base native.Kind) bool

	// Validate reports whether v satisfies the constraint.
	Validate(v any) bool

	// String describes the rule, e.g. "MaximalValue(< 100)".
	String() string
}

// ValidationError reports the first constraint a value violated.
type ValidationError struct {
	Constraint Kind
	Rule       string
	Value      any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: value %s violates %s", describe(e.Value), e.Rule)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Check evaluates cs against v in declaration order and returns a
// *ValidationError for the first one that fails.
func Check(v any, cs ...Constraint) error {
	for _, c := range cs {
		if !c.Validate(v) {
			return &ValidationError{Constraint: c.Kind(), Rule: c.String(), Value: v}
		}
	}
	return nil
}

// CheckApplicable verifies at load time that every constraint supports base.
func CheckApplicable(base native.Kind, cs ...Constraint) error {
	for _, c := range cs {
		if !c.Supports(base) {
			return fmt.Errorf("%w: %s on %s", ErrNotApplicable, c.Kind(), base)
		}
	}
	return nil
}

// maxDescribed is how many bytes of a string value an error message quotes.
const maxDescribed = 64

func describe(v any) string {
	switch x := v.(type) {
	case string:
		if len(x) > maxDescribed {
			cut := maxDescribed
			for cut > 0 && !utf8.RuneStart(x[cut]) {
				cut--
			}
			return fmt.Sprintf("%q...", x[:cut])
		}
		return fmt.Sprintf("%q", x)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case []any:
		return fmt.Sprintf("<list of %d>", len(x))
	default:
		return fmt.Sprintf("%v", x)
	}
}

func oneOf(base native.Kind, kinds ...native.Kind) bool {
	for _, k := range kinds {
		if k == base {
			return true
		}
	}
	return false
}
