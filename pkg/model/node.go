package model

import (
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
)

// Feature is a resolved feature.
type Feature struct {
	ID          fqi.FQI
	DisplayName string
	Description string

	// Definition is the source definition, used to serve the feature
	// definition to clients.
	Definition *featuredef.Feature

	Commands   []*Command
	Properties []*Property
	DataTypes  []*datatype.Defined
	Errors     []*DefinedError
	Metadata   []*Metadata
}

// Command is a resolved command.
type Command struct {
	ID          fqi.FQI
	DisplayName string
	Description string
	Observable  bool

	Parameters            datatype.Structure
	Responses             datatype.Structure
	IntermediateResponses datatype.Structure

	// Errors lists the defined execution errors the command may raise.
	Errors []fqi.FQI

	// Handler is nil when the command is declared but not implemented.
	Handler CommandHandler
}

// HasIntermediateResponses reports whether the command declares any.
func (c *Command) HasIntermediateResponses() bool {
	return len(c.IntermediateResponses.Fields) > 0
}

// AllowsError reports whether id is one of the command's defined errors.
func (c *Command) AllowsError(id fqi.FQI) bool {
	return containsFQI(c.Errors, id)
}

// Property is a resolved property.
type Property struct {
	ID          fqi.FQI
	DisplayName string
	Description string
	Observable  bool
	Type        datatype.Type
	Errors      []fqi.FQI

	// Get is nil when the property is declared but not implemented.
	Get PropertyGetter

	// Watch is set for observable properties backed by an ObservableValue.
	Watch PropertyWatcher
}

// AllowsError reports whether id is one of the property's defined errors.
func (p *Property) AllowsError(id fqi.FQI) bool {
	return containsFQI(p.Errors, id)
}

// DefinedError is a defined execution error.
type DefinedError struct {
	ID          fqi.FQI
	DisplayName string
	Description string
}

// Metadata is client metadata expected with calls to the nodes it affects.
type Metadata struct {
	ID          fqi.FQI
	DisplayName string
	Description string
	Type        datatype.Type
	Errors      []fqi.FQI

	// Affects lists features, commands and properties requiring the metadata.
	Affects []fqi.FQI
}

// AppliesTo reports whether the metadata is required for target, either
// directly or through the target's feature.
func (m *Metadata) AppliesTo(target fqi.FQI) bool {
	feature := target.Feature()
	for _, a := range m.Affects {
		if a.Equal(target) || a.Equal(feature) {
			return true
		}
	}
	return false
}

func containsFQI(list []fqi.FQI, id fqi.FQI) bool {
	for _, e := range list {
		if e.Equal(id) {
			return true
		}
	}
	return false
}
