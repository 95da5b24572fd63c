// Package featuredef provides the YAML form of feature definitions, the
// already-parsed tree the feature model is built from.
//
// The tree is deliberately close to the document: identifiers are plain
// strings, constraint bounds and set values are strings interpreted against
// the constrained base type. Cross-references and constraints are checked
// when the model is built, not here.
package featuredef

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature is a feature definition.
type Feature struct {
	Identifier     string                  `yaml:"identifier"`
	DisplayName    string                  `yaml:"displayName,omitempty"`
	Description    string                  `yaml:"description,omitempty"`
	Originator     string                  `yaml:"originator"`
	Category       string                  `yaml:"category"`
	FeatureVersion string                  `yaml:"featureVersion"`
	MaturityLevel  string                  `yaml:"maturityLevel,omitempty"`
	Commands       []Command               `yaml:"commands,omitempty"`
	Properties     []Property              `yaml:"properties,omitempty"`
	DataTypes      []DataTypeDefinition    `yaml:"dataTypes,omitempty"`
	Errors         []DefinedExecutionError `yaml:"errors,omitempty"`
	Metadata       []Metadata              `yaml:"metadata,omitempty"`
}

// Command is a command definition.
type Command struct {
	Identifier            string    `yaml:"identifier"`
	DisplayName           string    `yaml:"displayName,omitempty"`
	Description           string    `yaml:"description,omitempty"`
	Observable            bool      `yaml:"observable,omitempty"`
	Parameters            []Element `yaml:"parameters,omitempty"`
	Responses             []Element `yaml:"responses,omitempty"`
	IntermediateResponses []Element `yaml:"intermediateResponses,omitempty"`
	Errors                []string  `yaml:"errors,omitempty"` // defined execution error identifiers
}

// Property is a property definition.
type Property struct {
	Identifier  string   `yaml:"identifier"`
	DisplayName string   `yaml:"displayName,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Observable  bool     `yaml:"observable,omitempty"`
	DataType    DataType `yaml:"dataType"`
	Errors      []string `yaml:"errors,omitempty"`
}

// Element is a named, typed element: a parameter, a response, or a
// structure field.
type Element struct {
	Identifier  string   `yaml:"identifier"`
	DisplayName string   `yaml:"displayName,omitempty"`
	Description string   `yaml:"description,omitempty"`
	DataType    DataType `yaml:"dataType"`
}

// DataTypeDefinition is a named data type of a feature.
type DataTypeDefinition struct {
	Identifier  string   `yaml:"identifier"`
	DisplayName string   `yaml:"displayName,omitempty"`
	Description string   `yaml:"description,omitempty"`
	DataType    DataType `yaml:"dataType"`
}

// DefinedExecutionError is an error a command or property may raise.
type DefinedExecutionError struct {
	Identifier  string `yaml:"identifier"`
	DisplayName string `yaml:"displayName,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Metadata is client metadata a feature expects with calls.
type Metadata struct {
	Identifier  string   `yaml:"identifier"`
	DisplayName string   `yaml:"displayName,omitempty"`
	Description string   `yaml:"description,omitempty"`
	DataType    DataType `yaml:"dataType"`
	Errors      []string `yaml:"errors,omitempty"`

	// Affects lists the FQIs of the features, commands and properties that
	// require this metadata.
	Affects []string `yaml:"affects,omitempty"`
}

// DataType is a data type. Exactly one field must be set.
type DataType struct {
	Basic       string       `yaml:"basic,omitempty"`
	Identifier  string       `yaml:"identifier,omitempty"` // reference to a DataTypeDefinition
	List        *DataType    `yaml:"list,omitempty"`
	Structure   []Element    `yaml:"structure,omitempty"`
	Constrained *Constrained `yaml:"constrained,omitempty"`
}

// Variants returns how many alternatives are set.
func (d DataType) Variants() int {
	n := 0
	if d.Basic != "" {
		n++
	}
	if d.Identifier != "" {
		n++
	}
	if d.List != nil {
		n++
	}
	if len(d.Structure) > 0 {
		n++
	}
	if d.Constrained != nil {
		n++
	}
	return n
}

// Constrained is a base type with constraints.
type Constrained struct {
	Base        DataType    `yaml:"base"`
	Constraints Constraints `yaml:"constraints"`
}

// Constraints lists the constraints of a Constrained type. Values are
// checked in document order, or in field order when Order is empty.
type Constraints struct {
	Length                   *int         `yaml:"length,omitempty"`
	MinimalLength            *int         `yaml:"minimalLength,omitempty"`
	MaximalLength            *int         `yaml:"maximalLength,omitempty"`
	Set                      []string     `yaml:"set,omitempty"`
	Pattern                  *string      `yaml:"pattern,omitempty"`
	MaximalExclusive         *string      `yaml:"maximalExclusive,omitempty"`
	MaximalInclusive         *string      `yaml:"maximalInclusive,omitempty"`
	MinimalExclusive         *string      `yaml:"minimalExclusive,omitempty"`
	MinimalInclusive         *string      `yaml:"minimalInclusive,omitempty"`
	Unit                     *Unit        `yaml:"unit,omitempty"`
	ContentType              *ContentType `yaml:"contentType,omitempty"`
	ElementCount             *int         `yaml:"elementCount,omitempty"`
	MinimalElementCount      *int         `yaml:"minimalElementCount,omitempty"`
	MaximalElementCount      *int         `yaml:"maximalElementCount,omitempty"`
	Schema                   *Schema      `yaml:"schema,omitempty"`
	FullyQualifiedIdentifier *string      `yaml:"fullyQualifiedIdentifier,omitempty"`

	// Order holds the constraint keys as they appear in the document.
	Order []string `yaml:"-"`
}

// UnmarshalYAML decodes the constraints and records their key order.
func (c *Constraints) UnmarshalYAML(node *yaml.Node) error {
	type plain Constraints
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.Order = nil
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			c.Order = append(c.Order, node.Content[i].Value)
		}
	}
	return nil
}

// MarshalYAML writes the constraints in Order. Keys missing from Order
// follow in field order.
func (c Constraints) MarshalYAML() (any, error) {
	type plain Constraints
	var node yaml.Node
	if err := node.Encode(plain(c)); err != nil {
		return nil, err
	}
	if len(c.Order) == 0 || node.Kind != yaml.MappingNode {
		return &node, nil
	}
	type pair struct{ key, value *yaml.Node }
	pairs := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, pair{node.Content[i], node.Content[i+1]})
	}
	slices.SortStableFunc(pairs, func(a, b pair) int {
		return c.Position(a.key.Value) - c.Position(b.key.Value)
	})
	node.Content = node.Content[:0]
	for _, p := range pairs {
		node.Content = append(node.Content, p.key, p.value)
	}
	return &node, nil
}

// Position returns the index of key in Order, or len(Order) when absent.
func (c Constraints) Position(key string) int {
	if i := slices.Index(c.Order, key); i >= 0 {
		return i
	}
	return len(c.Order)
}

// Unit describes the physical unit of a numeric value.
type Unit struct {
	Label      string          `yaml:"label"`
	Factor     float64         `yaml:"factor"`
	Offset     float64         `yaml:"offset"`
	Components []UnitComponent `yaml:"components,omitempty"`
}

// UnitComponent is one SI base unit with its exponent.
type UnitComponent struct {
	SIUnit   string `yaml:"siUnit"`
	Exponent int    `yaml:"exponent"`
}

// ContentType describes the media type of a string or binary.
type ContentType struct {
	Type       string                 `yaml:"type"`
	Subtype    string                 `yaml:"subtype"`
	Parameters []ContentTypeParameter `yaml:"parameters,omitempty"`
}

// ContentTypeParameter is one media type parameter.
type ContentTypeParameter struct {
	Attribute string `yaml:"attribute"`
	Value     string `yaml:"value"`
}

// Schema requires a document to conform to an XML or JSON schema.
type Schema struct {
	Type   string `yaml:"type"` // "Xml" or "Json"
	URL    string `yaml:"url,omitempty"`
	Inline string `yaml:"inline,omitempty"`
}

// MajorVersion returns the major part of FeatureVersion ("1.0" -> 1).
func (f *Feature) MajorVersion() (int, error) {
	major, _, _ := strings.Cut(f.FeatureVersion, ".")
	v, err := strconv.Atoi(major)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid feature version %q", f.FeatureVersion)
	}
	return v, nil
}

// Parse parses a feature definition from YAML bytes.
func Parse(data []byte) (*Feature, error) {
	var f Feature
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing feature definition: %w", err)
	}
	if f.Identifier == "" {
		return nil, fmt.Errorf("feature definition missing identifier")
	}
	return &f, nil
}

// Load loads and parses a feature definition from a file.
func Load(path string) (*Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders a feature definition as YAML.
func Marshal(f *Feature) ([]byte, error) {
	return yaml.Marshal(f)
}
