package inspect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sila-protocol/sila-go/pkg/wire"
)

// MaxBinaryDisplay is how many bytes of a binary FormatValue prints.
const MaxBinaryDisplay = 32

// Formatter formats inspection output.
type Formatter struct {
	// ShowTypes includes parameter, response and property types.
	ShowTypes bool

	// ShowFQIs prints fully qualified identifiers instead of short names.
	ShowFQIs bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int

	// MarkUnimplemented flags commands and properties without a handler.
	// Registries built from fetched definitions have no handlers at all.
	MarkUnimplemented bool
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowTypes:         true,
		IndentWidth:       2,
		MarkUnimplemented: true,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatValue formats a value for display.
func (f *Formatter) FormatValue(v wire.Value) string {
	switch v.Type {
	case wire.ValueNone:
		return "void"
	case wire.ValueBoolean:
		return strconv.FormatBool(v.Boolean)
	case wire.ValueInteger:
		return strconv.FormatInt(v.Integer, 10)
	case wire.ValueReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case wire.ValueString:
		return strconv.Quote(v.String)
	case wire.ValueBinary:
		if v.BinaryRef != "" {
			return "binary " + v.BinaryRef
		}
		return formatBytes(v.Bytes)
	case wire.ValueDate:
		if v.Date == nil {
			return "date(?)"
		}
		return formatDate(*v.Date) + formatZone(v.Date.Zone)
	case wire.ValueTime:
		if v.Time == nil {
			return "time(?)"
		}
		return formatTime(*v.Time) + formatZone(v.Time.Zone)
	case wire.ValueTimestamp:
		if v.Timestamp == nil {
			return "timestamp(?)"
		}
		ts := v.Timestamp
		return formatDate(ts.Date) + "T" + formatTime(ts.Time) + formatZone(ts.Time.Zone)
	case wire.ValueList:
		parts := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			parts[i] = f.FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case wire.ValueStructure:
		return "{" + f.formatFields(v.Fields, ", ") + "}"
	default:
		return fmt.Sprintf("%s(?)", v.Type)
	}
}

func formatBytes(b []byte) string {
	if len(b) > MaxBinaryDisplay {
		return fmt.Sprintf("0x%x... (%d bytes)", b[:MaxBinaryDisplay], len(b))
	}
	return fmt.Sprintf("0x%x", b)
}

func formatDate(d wire.DateValue) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func formatTime(t wire.TimeValue) string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
}

// formatZone prints a UTC offset; the minutes share the sign of the hours.
func formatZone(z wire.Zone) string {
	minutes := int(z.Hours) * 60
	if z.Hours < 0 {
		minutes -= int(z.Minutes)
	} else {
		minutes += int(z.Minutes)
	}
	if minutes == 0 {
		return "Z"
	}
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes/60, minutes%60)
}

// formatFields prints identifier: value pairs sorted by identifier.
func (f *Formatter) formatFields(fields map[string]wire.Value, sep string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + f.FormatValue(fields[k])
	}
	return strings.Join(parts, sep)
}

// FormatResponses formats command responses, one per line.
func (f *Formatter) FormatResponses(responses map[string]wire.Value) string {
	if len(responses) == 0 {
		return f.Indent(1, "(no responses)") + "\n"
	}
	var sb strings.Builder
	for _, line := range strings.Split(f.formatFields(responses, "\n"), "\n") {
		sb.WriteString(f.Indent(1, line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatExecution formats an execution state update on one line.
func (f *Formatter) FormatExecution(info wire.ExecutionInfoPayload) string {
	s := info.Status.String()
	if info.Progress != nil {
		s += fmt.Sprintf(" %.0f%%", *info.Progress*100)
	}
	if info.EstimatedRemainingMillis != nil {
		s += fmt.Sprintf(", %s remaining", time.Duration(*info.EstimatedRemainingMillis)*time.Millisecond)
	}
	return s
}

// FormatFeatures formats the feature tree.
func (f *Formatter) FormatFeatures(features []FeatureInfo) string {
	var sb strings.Builder
	for _, feat := range features {
		sb.WriteString(f.FormatFeature(feat))
	}
	return sb.String()
}

// FormatFeature formats one feature with its commands and properties.
func (f *Formatter) FormatFeature(feat FeatureInfo) string {
	var sb strings.Builder
	name := feat.ID.FeatureIdentifier()
	if f.ShowFQIs {
		name = feat.ID.String()
	}
	sb.WriteString(fmt.Sprintf("%s (%s)\n", name, feat.DisplayName))

	if len(feat.Commands) > 0 {
		sb.WriteString(f.Indent(1, "Commands:\n"))
	}
	for _, c := range feat.Commands {
		line := f.memberName(c.ID.Identifier(), c.ID.String())
		if f.ShowTypes {
			line += "(" + formatFieldList(c.Parameters) + ")"
			if len(c.Responses) > 0 {
				line += " -> (" + formatFieldList(c.Responses) + ")"
			}
		}
		line += f.flags(c.Observable, c.Implemented)
		sb.WriteString(f.Indent(2, line+"\n"))
	}

	if len(feat.Properties) > 0 {
		sb.WriteString(f.Indent(1, "Properties:\n"))
	}
	for _, p := range feat.Properties {
		line := f.memberName(p.ID.Identifier(), p.ID.String())
		if f.ShowTypes {
			line += ": " + p.Type
		}
		line += f.flags(p.Observable, p.Implemented)
		sb.WriteString(f.Indent(2, line+"\n"))
	}
	return sb.String()
}

func (f *Formatter) memberName(short, full string) string {
	if f.ShowFQIs {
		return full
	}
	return short
}

func formatFieldList(fields []FieldInfo) string {
	parts := make([]string, len(fields))
	for i, fi := range fields {
		parts[i] = fi.Identifier + " " + fi.Type
	}
	return strings.Join(parts, ", ")
}

func (f *Formatter) flags(observable, implemented bool) string {
	var out []string
	if observable {
		out = append(out, "observable")
	}
	if !implemented && f.MarkUnimplemented {
		out = append(out, "not implemented")
	}
	if len(out) == 0 {
		return ""
	}
	return " [" + strings.Join(out, ", ") + "]"
}
