package constraint

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sila-protocol/sila-go/pkg/native"
)

// SchemaType is the document language a Schema constraint refers to.
type SchemaType uint8

const (
	SchemaXML SchemaType = iota + 1
	SchemaJSON
)

// String returns the schema type name.
func (t SchemaType) String() string {
	switch t {
	case SchemaXML:
		return "Xml"
	case SchemaJSON:
		return "Json"
	default:
		return "Unknown"
	}
}

// Schema requires a string or binary to be a well-formed XML or JSON
// document. When an inline JSON schema is given the document is also
// validated against it. Schemas referenced by URL are not fetched.
type Schema struct {
	typ      SchemaType
	url      string
	inline   string
	resolved *jsonschema.Resolved
}

// NewSchema builds a Schema constraint. Exactly one of url and inline must be set.
func NewSchema(typ SchemaType, url, inline string) (*Schema, error) {
	if typ != SchemaXML && typ != SchemaJSON {
		return nil, fmt.Errorf("%w: unknown schema type %d", ErrInvalidConstraint, typ)
	}
	if (url == "") == (inline == "") {
		return nil, fmt.Errorf("%w: schema needs exactly one of url or inline content", ErrInvalidConstraint)
	}
	s := &Schema{typ: typ, url: url, inline: inline}
	if typ == SchemaJSON && inline != "" {
		var js jsonschema.Schema
		if err := json.Unmarshal([]byte(inline), &js); err != nil {
			return nil, fmt.Errorf("%w: inline json schema: %v", ErrInvalidConstraint, err)
		}
		resolved, err := js.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: inline json schema: %v", ErrInvalidConstraint, err)
		}
		s.resolved = resolved
	}
	return s, nil
}

// Type returns the schema language.
func (c *Schema) Type() SchemaType { return c.typ }

// URL returns the schema location, if referenced by URL.
func (c *Schema) URL() string { return c.url }

func (c *Schema) Kind() Kind { return KindSchema }

func (c *Schema) Supports(base native.Kind) bool {
	return oneOf(base, native.KindString, native.KindBinary)
}

func (c *Schema) String() string {
	if c.url != "" {
		return fmt.Sprintf("Schema(%s, %s)", c.typ, c.url)
	}
	return fmt.Sprintf("Schema(%s, inline)", c.typ)
}

func (c *Schema) Validate(v any) bool {
	var doc []byte
	switch x := v.(type) {
	case string:
		doc = []byte(x)
	case []byte:
		doc = x
	default:
		return false
	}

	switch c.typ {
	case SchemaJSON:
		var instance any
		if err := json.Unmarshal(doc, &instance); err != nil {
			return false
		}
		if c.resolved != nil {
			return c.resolved.Validate(instance) == nil
		}
		return true
	case SchemaXML:
		return wellFormedXML(doc)
	}
	return false
}

// wellFormedXML reports whether doc parses as XML with a single root element.
func wellFormedXML(doc []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return depth == 0 && roots == 1
		}
		if err != nil {
			return false
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
}
