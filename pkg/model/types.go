package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/native"
)

// resolution states of a named data type
const (
	unresolved = iota
	resolving
	resolved
)

type namedType struct {
	defined *datatype.Defined
	source  featuredef.DataType
	state   int
}

// typeScope resolves the data types of one feature. References are local to
// the feature and resolved depth-first, so a reference back to a type still
// being resolved is a cycle.
type typeScope struct {
	feature fqi.FQI
	named   map[string]*namedType
}

func newTypeScope(feature fqi.FQI) *typeScope {
	return &typeScope{feature: feature, named: make(map[string]*namedType)}
}

func (s *typeScope) declare(def featuredef.DataTypeDefinition) (*datatype.Defined, error) {
	key := strings.ToLower(def.Identifier)
	if _, ok := s.named[key]; ok {
		return nil, fmt.Errorf("%w: data type %s", ErrDuplicateIdentifier, s.feature.DataType(def.Identifier))
	}
	d := &datatype.Defined{ID: s.feature.DataType(def.Identifier)}
	s.named[key] = &namedType{defined: d, source: def.DataType}
	return d, nil
}

func (s *typeScope) resolveAll() error {
	for _, n := range s.named {
		if _, err := s.resolve(n.defined.ID.Identifier()); err != nil {
			return err
		}
	}
	return nil
}

func (s *typeScope) resolve(identifier string) (*datatype.Defined, error) {
	n, ok := s.named[strings.ToLower(identifier)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedDataType, s.feature.DataType(identifier))
	}
	switch n.state {
	case resolved:
		return n.defined, nil
	case resolving:
		return nil, fmt.Errorf("%w: %s", ErrCyclicDataType, n.defined.ID)
	}
	n.state = resolving
	t, err := s.convert(n.source, n.defined.ID.String())
	if err != nil {
		return nil, err
	}
	n.defined.Type = t
	n.state = resolved
	return n.defined, nil
}

// convert builds the data type described by dt. path names the node for
// error messages.
func (s *typeScope) convert(dt featuredef.DataType, path string) (datatype.Type, error) {
	if dt.Variants() != 1 {
		return nil, fmt.Errorf("%w: %s: data type must have exactly one variant", ErrInvalidDefinition, path)
	}
	switch {
	case dt.Basic != "":
		k, ok := native.ParseKind(dt.Basic)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown basic type %q", ErrInvalidDefinition, path, dt.Basic)
		}
		return datatype.Basic{K: k}, nil

	case dt.Identifier != "":
		return s.resolve(dt.Identifier)

	case dt.List != nil:
		elem, err := s.convert(*dt.List, path+"[]")
		if err != nil {
			return nil, err
		}
		if elem.Kind() == native.KindList {
			return nil, fmt.Errorf("%w: %s: list of lists", ErrInvalidDefinition, path)
		}
		return datatype.List{Elem: elem}, nil

	case len(dt.Structure) > 0:
		return s.structure(dt.Structure, path)

	default:
		return s.constrained(dt.Constrained, path)
	}
}

// structure converts an element list. It also serves parameters and responses.
func (s *typeScope) structure(elems []featuredef.Element, path string) (datatype.Structure, error) {
	seen := make(map[string]bool, len(elems))
	fields := make([]datatype.Field, 0, len(elems))
	for _, e := range elems {
		if !fqi.ValidIdentifier(e.Identifier) {
			return datatype.Structure{}, fmt.Errorf("%w: %s: identifier %q", ErrInvalidDefinition, path, e.Identifier)
		}
		key := strings.ToLower(e.Identifier)
		if seen[key] {
			return datatype.Structure{}, fmt.Errorf("%w: %s.%s", ErrDuplicateIdentifier, path, e.Identifier)
		}
		seen[key] = true

		t, err := s.convert(e.DataType, path+"."+e.Identifier)
		if err != nil {
			return datatype.Structure{}, err
		}
		fields = append(fields, datatype.Field{
			Identifier:  e.Identifier,
			DisplayName: e.DisplayName,
			Description: e.Description,
			Type:        t,
		})
	}
	return datatype.Structure{Fields: fields}, nil
}

func (s *typeScope) constrained(c *featuredef.Constrained, path string) (datatype.Type, error) {
	base, err := s.convert(c.Base, path)
	if err != nil {
		return nil, err
	}
	kind := base.Kind()
	if kind == native.KindStructure {
		return nil, fmt.Errorf("%w: %s: structures cannot be constrained", ErrInvalidConstraint, path)
	}
	cs, err := buildConstraints(kind, c.Constraints)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w: %s: no constraints given", ErrInvalidConstraint, path)
	}
	t, err := datatype.NewConstrained(base, cs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConstraint, path, err)
	}
	return t, nil
}

// buildConstraints converts the declared constraints in declaration order.
// Bounds and set values are parsed as values of the base kind.
func buildConstraints(base native.Kind, c featuredef.Constraints) ([]constraint.Constraint, error) {
	type keyed struct {
		key string
		c   constraint.Constraint
	}
	var built []keyed
	add := func(key string, cc constraint.Constraint) { built = append(built, keyed{key, cc}) }

	counts := []struct {
		key  string
		v    *int
		make func(int) constraint.Constraint
	}{
		{"length", c.Length, func(n int) constraint.Constraint { return constraint.Length{Value: n} }},
		{"minimalLength", c.MinimalLength, func(n int) constraint.Constraint { return constraint.MinimalLength{Value: n} }},
		{"maximalLength", c.MaximalLength, func(n int) constraint.Constraint { return constraint.MaximalLength{Value: n} }},
	}
	for _, cc := range counts {
		if cc.v == nil {
			continue
		}
		if *cc.v < 0 {
			return nil, fmt.Errorf("%w: negative length %d", ErrInvalidConstraint, *cc.v)
		}
		add(cc.key, cc.make(*cc.v))
	}

	if len(c.Set) > 0 {
		values := make([]any, len(c.Set))
		for i, text := range c.Set {
			v, err := parseValue(base, text)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		add("set", constraint.Set{Values: values})
	}

	if c.Pattern != nil {
		p, err := constraint.NewPattern(*c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConstraint, err)
		}
		add("pattern", p)
	}

	bounds := []struct {
		key       string
		text      *string
		maximal   bool
		exclusive bool
	}{
		{"maximalExclusive", c.MaximalExclusive, true, true},
		{"maximalInclusive", c.MaximalInclusive, true, false},
		{"minimalExclusive", c.MinimalExclusive, false, true},
		{"minimalInclusive", c.MinimalInclusive, false, false},
	}
	for _, b := range bounds {
		if b.text == nil {
			continue
		}
		v, err := parseValue(base, *b.text)
		if err != nil {
			return nil, err
		}
		if b.maximal {
			add(b.key, constraint.MaximalValue{Bound: v, Exclusive: b.exclusive})
		} else {
			add(b.key, constraint.MinimalValue{Bound: v, Exclusive: b.exclusive})
		}
	}

	if c.Unit != nil {
		u := constraint.Unit{Label: c.Unit.Label, Factor: c.Unit.Factor, Offset: c.Unit.Offset}
		for _, comp := range c.Unit.Components {
			u.Components = append(u.Components, constraint.UnitComponent{SIUnit: comp.SIUnit, Exponent: comp.Exponent})
		}
		add("unit", u)
	}

	if c.ContentType != nil {
		ct := constraint.ContentType{Type: c.ContentType.Type, Subtype: c.ContentType.Subtype}
		if ct.Type == "" || ct.Subtype == "" {
			return nil, fmt.Errorf("%w: content type needs type and subtype", ErrInvalidConstraint)
		}
		for _, p := range c.ContentType.Parameters {
			ct.Parameters = append(ct.Parameters, constraint.ContentTypeParameter{Attribute: p.Attribute, Value: p.Value})
		}
		add("contentType", ct)
	}

	elementCounts := []struct {
		key  string
		v    *int
		make func(int) constraint.Constraint
	}{
		{"elementCount", c.ElementCount, func(n int) constraint.Constraint { return constraint.ElementCount{Value: n} }},
		{"minimalElementCount", c.MinimalElementCount, func(n int) constraint.Constraint { return constraint.MinimalElementCount{Value: n} }},
		{"maximalElementCount", c.MaximalElementCount, func(n int) constraint.Constraint { return constraint.MaximalElementCount{Value: n} }},
	}
	for _, cc := range elementCounts {
		if cc.v == nil {
			continue
		}
		if *cc.v < 0 {
			return nil, fmt.Errorf("%w: negative element count %d", ErrInvalidConstraint, *cc.v)
		}
		add(cc.key, cc.make(*cc.v))
	}

	if c.Schema != nil {
		var typ constraint.SchemaType
		switch c.Schema.Type {
		case "Xml":
			typ = constraint.SchemaXML
		case "Json":
			typ = constraint.SchemaJSON
		default:
			return nil, fmt.Errorf("%w: unknown schema type %q", ErrInvalidConstraint, c.Schema.Type)
		}
		sc, err := constraint.NewSchema(typ, c.Schema.URL, c.Schema.Inline)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConstraint, err)
		}
		add("schema", sc)
	}

	if c.FullyQualifiedIdentifier != nil {
		k, ok := fqi.ParseKind(*c.FullyQualifiedIdentifier)
		if !ok {
			return nil, fmt.Errorf("%w: unknown identifier kind %q", ErrInvalidConstraint, *c.FullyQualifiedIdentifier)
		}
		add("fullyQualifiedIdentifier", constraint.FullyQualifiedIdentifier{Identifier: k})
	}

	slices.SortStableFunc(built, func(a, b keyed) int {
		return c.Position(a.key) - c.Position(b.key)
	})
	cs := make([]constraint.Constraint, len(built))
	for i, b := range built {
		cs[i] = b.c
	}
	return cs, nil
}

var (
	dateLayouts      = []string{"2006-01-02Z07:00", "2006-01-02"}
	timeLayouts      = []string{"15:04:05Z07:00", "15:04:05"}
	timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}
)

// parseValue parses the textual form of a bound or set value as a native
// value of kind.
func parseValue(kind native.Kind, text string) (any, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case native.KindString:
		return text, nil
	case native.KindInteger:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidConstraint, text)
		}
		return v, nil
	case native.KindReal:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a real", ErrInvalidConstraint, text)
		}
		return v, nil
	case native.KindDate:
		t, err := parseTime(dateLayouts, text)
		if err != nil {
			return nil, err
		}
		return native.Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Timezone: native.TimezoneOf(t)}, nil
	case native.KindTime:
		t, err := parseTime(timeLayouts, text)
		if err != nil {
			return nil, err
		}
		return native.Time{
			Hour:        t.Hour(),
			Minute:      t.Minute(),
			Second:      t.Second(),
			Millisecond: t.Nanosecond() / int(time.Millisecond),
			Timezone:    native.TimezoneOf(t),
		}, nil
	case native.KindTimestamp:
		t, err := parseTime(timestampLayouts, text)
		if err != nil {
			return nil, err
		}
		return native.TimestampOf(t), nil
	default:
		return nil, fmt.Errorf("%w: values of kind %s cannot be bounds or set members", ErrInvalidConstraint, kind)
	}
}

func parseTime(layouts []string, text string) (time.Time, error) {
	var errs []error
	for _, layout := range layouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidConstraint, text, errors.Join(errs...))
}
