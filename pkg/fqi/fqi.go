package fqi

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidIdentifier is returned when a text does not match the grammar of
// any node kind.
var ErrInvalidIdentifier = errors.New("invalid fully qualified identifier")

// MaxIdentifierLength is the maximum length of a single identifier segment.
const MaxIdentifierLength = 255

// Kind identifies the type of Feature-model node an FQI names.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFeature
	KindCommand
	KindParameter
	KindResponse
	KindIntermediateResponse
	KindProperty
	KindDataType
	KindDefinedExecutionError
	KindMetadata
)

// String returns the path segment keyword used for the kind.
func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "Feature"
	case KindCommand:
		return "Command"
	case KindParameter:
		return "Parameter"
	case KindResponse:
		return "Response"
	case KindIntermediateResponse:
		return "IntermediateResponse"
	case KindProperty:
		return "Property"
	case KindDataType:
		return "DataType"
	case KindDefinedExecutionError:
		return "DefinedExecutionError"
	case KindMetadata:
		return "Metadata"
	default:
		return "Unknown"
	}
}

// ParseKind resolves the identifier-kind names used by the
// FullyQualifiedIdentifier constraint (e.g. "CommandIdentifier").
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "FeatureIdentifier":
		return KindFeature, true
	case "CommandIdentifier":
		return KindCommand, true
	case "CommandParameterIdentifier":
		return KindParameter, true
	case "CommandResponseIdentifier":
		return KindResponse, true
	case "IntermediateCommandResponseIdentifier":
		return KindIntermediateResponse, true
	case "PropertyIdentifier":
		return KindProperty, true
	case "TypeIdentifier", "DataTypeIdentifier":
		return KindDataType, true
	case "DefinedExecutionErrorIdentifier":
		return KindDefinedExecutionError, true
	case "MetadataIdentifier":
		return KindMetadata, true
	}
	return KindUnknown, false
}

var (
	identifierRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	namespaceRe  = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)*$`)
	versionRe    = regexp.MustCompile(`^v(\d+)(?:_(\d+))?$`)
)

// ValidIdentifier reports whether s is a valid single identifier segment.
func ValidIdentifier(s string) bool {
	return len(s) <= MaxIdentifierLength && identifierRe.MatchString(s)
}

// ValidNamespace reports whether s is a valid originator or category.
func ValidNamespace(s string) bool {
	return len(s) <= MaxIdentifierLength && namespaceRe.MatchString(s)
}

// FQI is a parsed fully qualified identifier. The zero value is invalid.
type FQI struct {
	kind       Kind
	originator string
	category   string
	feature    string
	major      int
	minor      int
	hasMinor   bool
	node       string // command, property, data type, error or metadata
	child      string // parameter, response or intermediate response
}

// NewFeature builds and validates a feature identifier.
// A negative minor omits the minor part of the version segment.
func NewFeature(originator, category, identifier string, major, minor int) (FQI, error) {
	f := FQI{
		kind:       KindFeature,
		originator: originator,
		category:   category,
		feature:    identifier,
		major:      major,
		minor:      minor,
		hasMinor:   minor >= 0,
	}
	if !ValidNamespace(originator) || !ValidNamespace(category) || !ValidIdentifier(identifier) || major < 0 {
		return FQI{}, fmt.Errorf("%w: %s", ErrInvalidIdentifier, f.String())
	}
	return f, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(text string) FQI {
	f, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return f
}

// Parse parses text into an FQI of whichever kind its grammar matches.
func Parse(text string) (FQI, error) {
	invalid := func() (FQI, error) {
		return FQI{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, text)
	}

	parts := strings.Split(text, "/")
	if len(parts) != 4 && len(parts) != 6 && len(parts) != 8 {
		return invalid()
	}
	if !ValidNamespace(parts[0]) || !ValidNamespace(parts[1]) || !ValidIdentifier(parts[2]) {
		return invalid()
	}
	m := versionRe.FindStringSubmatch(parts[3])
	if m == nil {
		return invalid()
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return invalid()
	}
	f := FQI{
		kind:       KindFeature,
		originator: parts[0],
		category:   parts[1],
		feature:    parts[2],
		major:      major,
	}
	if m[2] != "" {
		minor, err := strconv.Atoi(m[2])
		if err != nil {
			return invalid()
		}
		f.minor = minor
		f.hasMinor = true
	}
	if len(parts) == 4 {
		return f, nil
	}

	if !ValidIdentifier(parts[5]) {
		return invalid()
	}
	f.node = parts[5]
	switch parts[4] {
	case "Command":
		f.kind = KindCommand
	case "Property":
		f.kind = KindProperty
	case "DataType":
		f.kind = KindDataType
	case "DefinedExecutionError":
		f.kind = KindDefinedExecutionError
	case "Metadata":
		f.kind = KindMetadata
	default:
		return invalid()
	}
	if len(parts) == 6 {
		return f, nil
	}

	if f.kind != KindCommand || !ValidIdentifier(parts[7]) {
		return invalid()
	}
	f.child = parts[7]
	switch parts[6] {
	case "Parameter":
		f.kind = KindParameter
	case "Response":
		f.kind = KindResponse
	case "IntermediateResponse":
		f.kind = KindIntermediateResponse
	default:
		return invalid()
	}
	return f, nil
}

// Validate reports whether text is a valid FQI of the expected kind.
func Validate(text string, expected Kind) bool {
	f, err := Parse(text)
	return err == nil && f.kind == expected
}

// Kind returns the node kind.
func (f FQI) Kind() Kind { return f.kind }

// IsZero reports whether f is the zero value.
func (f FQI) IsZero() bool { return f.kind == KindUnknown }

// Originator returns the originator segment (e.g. "org.silastandard").
func (f FQI) Originator() string { return f.originator }

// Category returns the category segment (e.g. "core").
func (f FQI) Category() string { return f.category }

// FeatureIdentifier returns the feature identifier segment.
func (f FQI) FeatureIdentifier() string { return f.feature }

// MajorVersion returns the major feature version.
func (f FQI) MajorVersion() int { return f.major }

// Identifier returns the innermost identifier of the node.
func (f FQI) Identifier() string {
	switch {
	case f.child != "":
		return f.child
	case f.node != "":
		return f.node
	default:
		return f.feature
	}
}

// Version returns the version segment ("v1" or "v1_2").
func (f FQI) Version() string {
	if f.hasMinor {
		return fmt.Sprintf("v%d_%d", f.major, f.minor)
	}
	return fmt.Sprintf("v%d", f.major)
}

// Feature returns the identifier of the feature owning this node.
func (f FQI) Feature() FQI {
	f.kind = KindFeature
	f.node = ""
	f.child = ""
	return f
}

// Parent returns the owning node: the command for parameters and responses,
// the feature for top-level nodes. The parent of a feature is the zero FQI.
func (f FQI) Parent() FQI {
	switch f.kind {
	case KindParameter, KindResponse, KindIntermediateResponse:
		f.kind = KindCommand
		f.child = ""
		return f
	case KindFeature, KindUnknown:
		return FQI{}
	default:
		return f.Feature()
	}
}

func (f FQI) featureChild(kind Kind, id string) FQI {
	out := f.Feature()
	out.kind = kind
	out.node = id
	return out
}

// Command returns the identifier of command id within f's feature.
func (f FQI) Command(id string) FQI { return f.featureChild(KindCommand, id) }

// Property returns the identifier of property id within f's feature.
func (f FQI) Property(id string) FQI { return f.featureChild(KindProperty, id) }

// DataType returns the identifier of data type id within f's feature.
func (f FQI) DataType(id string) FQI { return f.featureChild(KindDataType, id) }

// DefinedExecutionError returns the identifier of error id within f's feature.
func (f FQI) DefinedExecutionError(id string) FQI {
	return f.featureChild(KindDefinedExecutionError, id)
}

// Metadata returns the identifier of metadata id within f's feature.
func (f FQI) Metadata(id string) FQI { return f.featureChild(KindMetadata, id) }

func (f FQI) commandChild(kind Kind, id string) FQI {
	if f.kind != KindCommand {
		return FQI{}
	}
	f.kind = kind
	f.child = id
	return f
}

// Parameter returns the identifier of parameter id of command f.
// It returns the zero FQI when f is not a command.
func (f FQI) Parameter(id string) FQI { return f.commandChild(KindParameter, id) }

// Response returns the identifier of response id of command f.
func (f FQI) Response(id string) FQI { return f.commandChild(KindResponse, id) }

// IntermediateResponse returns the identifier of intermediate response id of command f.
func (f FQI) IntermediateResponse(id string) FQI {
	return f.commandChild(KindIntermediateResponse, id)
}

// String returns the canonical text form.
func (f FQI) String() string {
	if f.kind == KindUnknown {
		return ""
	}
	var b strings.Builder
	b.WriteString(f.originator)
	b.WriteByte('/')
	b.WriteString(f.category)
	b.WriteByte('/')
	b.WriteString(f.feature)
	b.WriteByte('/')
	b.WriteString(f.Version())
	if f.kind == KindFeature {
		return b.String()
	}
	b.WriteByte('/')
	switch f.kind {
	case KindParameter, KindResponse, KindIntermediateResponse:
		b.WriteString(KindCommand.String())
	default:
		b.WriteString(f.kind.String())
	}
	b.WriteByte('/')
	b.WriteString(f.node)
	if f.child != "" {
		b.WriteByte('/')
		b.WriteString(f.kind.String())
		b.WriteByte('/')
		b.WriteString(f.child)
	}
	return b.String()
}

// Key returns the lower-case form used for case-insensitive lookups.
func (f FQI) Key() string {
	return strings.ToLower(f.String())
}

// Equal compares two identifiers case-insensitively.
func (f FQI) Equal(other FQI) bool {
	return f.kind == other.kind && strings.EqualFold(f.String(), other.String())
}

// KeyOf returns the lookup key for a textual FQI without validating it.
func KeyOf(text string) string {
	return strings.ToLower(text)
}
