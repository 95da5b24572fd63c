package model

import (
	"errors"

	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/fqi"
)

// Model errors.
var (
	ErrInvalidDefinition   = errors.New("invalid feature definition")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrUndefinedDataType   = errors.New("undefined data type")
	ErrCyclicDataType      = errors.New("cyclic data type definition")
	ErrUndefinedError      = errors.New("undefined execution error")
	ErrInvalidConstraint   = errors.New("invalid constraint")
	ErrUnknownTarget       = errors.New("handler for unknown target")
)

// Registry is the immutable, resolved feature set of a server. Nodes are
// keyed by the lower-case form of their fully qualified identifier.
type Registry struct {
	features   []*Feature
	byFeature  map[string]*Feature
	commands   map[string]*Command
	properties map[string]*Property
	dataTypes  map[string]*datatype.Defined
	errors     map[string]*DefinedError
	metadata   map[string]*Metadata
}

func newRegistry() *Registry {
	return &Registry{
		byFeature:  make(map[string]*Feature),
		commands:   make(map[string]*Command),
		properties: make(map[string]*Property),
		dataTypes:  make(map[string]*datatype.Defined),
		errors:     make(map[string]*DefinedError),
		metadata:   make(map[string]*Metadata),
	}
}

// Features returns the features in the order they were added.
func (r *Registry) Features() []*Feature {
	out := make([]*Feature, len(r.features))
	copy(out, r.features)
	return out
}

// Feature returns the feature with the given identifier.
func (r *Registry) Feature(id fqi.FQI) (*Feature, bool) {
	f, ok := r.byFeature[id.Feature().Key()]
	return f, ok && id.Kind() == fqi.KindFeature
}

// Command returns the command with the given identifier.
func (r *Registry) Command(id fqi.FQI) (*Command, bool) {
	c, ok := r.commands[id.Key()]
	return c, ok
}

// Property returns the property with the given identifier.
func (r *Registry) Property(id fqi.FQI) (*Property, bool) {
	p, ok := r.properties[id.Key()]
	return p, ok
}

// DataType returns the named data type with the given identifier.
func (r *Registry) DataType(id fqi.FQI) (*datatype.Defined, bool) {
	d, ok := r.dataTypes[id.Key()]
	return d, ok
}

// DefinedError returns the defined execution error with the given identifier.
func (r *Registry) DefinedError(id fqi.FQI) (*DefinedError, bool) {
	e, ok := r.errors[id.Key()]
	return e, ok
}

// Metadata returns the metadata with the given identifier.
func (r *Registry) Metadata(id fqi.FQI) (*Metadata, bool) {
	m, ok := r.metadata[id.Key()]
	return m, ok
}

// RequiredMetadata returns the metadata a call to target must carry.
func (r *Registry) RequiredMetadata(target fqi.FQI) []*Metadata {
	var out []*Metadata
	for _, f := range r.features {
		for _, m := range f.Metadata {
			if m.AppliesTo(target) {
				out = append(out, m)
			}
		}
	}
	return out
}
