package constraint

import (
	"fmt"
	"regexp"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// Pattern requires a string to match a regular expression in full.
type Pattern struct {
	expr string
	re   *regexp.Regexp
}

// NewPattern compiles expr anchored at both ends.
func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidConstraint, expr, err)
	}
	return &Pattern{expr: expr, re: re}, nil
}

// Expr returns the pattern as declared.
func (c *Pattern) Expr() string { return c.expr }

func (c *Pattern) Kind() Kind                     { return KindPattern }
func (c *Pattern) Supports(base native.Kind) bool { return base == native.KindString }
func (c *Pattern) String() string                 { return fmt.Sprintf("Pattern(%s)", c.expr) }

func (c *Pattern) Validate(v any) bool {
	s, ok := v.(string)
	return ok && c.re.MatchString(s)
}
