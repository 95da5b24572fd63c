package inspect

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/native"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Inspector errors.
var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnsupportedType  = errors.New("type cannot be entered as text")
)

// Inspector lists the features of a registry and prepares calls to them.
type Inspector struct {
	registry *model.Registry
}

// NewInspector creates a new Inspector for the given registry.
func NewInspector(reg *model.Registry) *Inspector {
	return &Inspector{registry: reg}
}

// Registry returns the underlying feature registry.
func (i *Inspector) Registry() *model.Registry {
	return i.registry
}

// FeatureInfo represents feature information for display.
type FeatureInfo struct {
	ID          fqi.FQI
	DisplayName string
	Commands    []CommandInfo
	Properties  []PropertyInfo
}

// CommandInfo represents command information for display.
type CommandInfo struct {
	ID          fqi.FQI
	DisplayName string
	Observable  bool
	Implemented bool
	Parameters  []FieldInfo
	Responses   []FieldInfo
}

// PropertyInfo represents property information for display.
type PropertyInfo struct {
	ID          fqi.FQI
	DisplayName string
	Observable  bool
	Implemented bool
	Type        string
}

// FieldInfo is a parameter or response.
type FieldInfo struct {
	Identifier string
	Type       string
}

// Features returns every registered feature.
func (i *Inspector) Features() []FeatureInfo {
	features := i.registry.Features()
	out := make([]FeatureInfo, 0, len(features))
	for _, f := range features {
		out = append(out, inspectFeature(f))
	}
	return out
}

// InspectFeature returns information about a single feature.
func (i *Inspector) InspectFeature(id fqi.FQI) (*FeatureInfo, error) {
	f, ok := i.registry.Feature(id.Feature())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	info := inspectFeature(f)
	return &info, nil
}

func inspectFeature(f *model.Feature) FeatureInfo {
	info := FeatureInfo{ID: f.ID, DisplayName: f.DisplayName}
	for _, c := range f.Commands {
		info.Commands = append(info.Commands, CommandInfo{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Observable:  c.Observable,
			Implemented: c.Handler != nil,
			Parameters:  fields(c.Parameters),
			Responses:   fields(c.Responses),
		})
	}
	for _, p := range f.Properties {
		info.Properties = append(info.Properties, PropertyInfo{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Observable:  p.Observable,
			Implemented: p.Get != nil,
			Type:        p.Type.String(),
		})
	}
	return info
}

func fields(s datatype.Structure) []FieldInfo {
	out := make([]FieldInfo, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, FieldInfo{Identifier: f.Identifier, Type: f.Type.String()})
	}
	return out
}

// Command returns the command with the given FQI.
func (i *Inspector) Command(id fqi.FQI) (*model.Command, error) {
	c, ok := i.registry.Command(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	return c, nil
}

// Property returns the property with the given FQI.
func (i *Inspector) Property(id fqi.FQI) (*model.Property, error) {
	p, ok := i.registry.Property(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	return p, nil
}

// ParseParameters converts key=value arguments into the parameters of cmd.
// Values are read according to the parameter's type:
//   - Boolean: true/false, 1/0
//   - Integer, Real: decimal numbers
//   - String: the text as given
//   - Binary: hex with a 0x prefix, otherwise the text's bytes
//
// Constraints are not checked here; the server validates them.
func ParseParameters(cmd *model.Command, args []string) (map[string]wire.Value, error) {
	params := make(map[string]wire.Value, len(args))
	for _, arg := range args {
		key, text, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidArgument, arg)
		}
		field, found := cmd.Parameters.Field(key)
		if !found {
			return nil, fmt.Errorf("%w: %s has no parameter %s", ErrInvalidArgument, cmd.ID.Identifier(), key)
		}
		v, err := ParseValue(field.Type, text)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", field.Identifier, err)
		}
		params[field.Identifier] = v
	}
	for _, f := range cmd.Parameters.Fields {
		if _, ok := params[f.Identifier]; !ok {
			return nil, fmt.Errorf("%w: missing parameter %s", ErrInvalidArgument, f.Identifier)
		}
	}
	return params, nil
}

// ParseValue reads text as a value of type t.
func ParseValue(t datatype.Type, text string) (wire.Value, error) {
	switch kind := datatype.Underlying(t).Kind(); kind {
	case native.KindBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return wire.Value{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidArgument, text)
		}
		return wire.Bool(b), nil
	case native.KindInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return wire.Value{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidArgument, text)
		}
		return wire.Int(n), nil
	case native.KindReal:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return wire.Value{}, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, text)
		}
		return wire.Real(f), nil
	case native.KindString:
		return wire.Str(text), nil
	case native.KindBinary:
		if rest, ok := strings.CutPrefix(text, "0x"); ok {
			data, err := hex.DecodeString(rest)
			if err != nil {
				return wire.Value{}, fmt.Errorf("%w: %q is not hex", ErrInvalidArgument, text)
			}
			return wire.Bytes(data), nil
		}
		return wire.Bytes([]byte(text)), nil
	default:
		return wire.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
}
