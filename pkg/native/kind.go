package native

// Kind enumerates the shapes a native value can take.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBoolean
	KindInteger
	KindReal
	KindString
	KindBinary
	KindDate
	KindTime
	KindTimestamp
	KindList
	KindStructure
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "Boolean"
	case KindInteger:
		return "Integer"
	case KindReal:
		return "Real"
	case KindString:
		return "String"
	case KindBinary:
		return "Binary"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindTimestamp:
		return "Timestamp"
	case KindList:
		return "List"
	case KindStructure:
		return "Structure"
	default:
		return "Invalid"
	}
}

// ParseKind resolves a basic type name such as "Integer".
func ParseKind(s string) (Kind, bool) {
	for k := KindBoolean; k <= KindTimestamp; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindInvalid, false
}

// KindOf reports the kind of a native value.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBoolean
	case int64:
		return KindInteger
	case float64:
		return KindReal
	case string:
		return KindString
	case []byte:
		return KindBinary
	case Date:
		return KindDate
	case Time:
		return KindTime
	case Timestamp:
		return KindTimestamp
	case []any:
		return KindList
	case map[string]any:
		return KindStructure
	default:
		return KindInvalid
	}
}
