package wire

import (
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/native"
)

// ValueType tags the variant held by a Value.
type ValueType uint8

const (
	ValueNone ValueType = iota
	ValueBoolean
	ValueInteger
	ValueReal
	ValueString
	ValueBinary
	ValueDate
	ValueTime
	ValueTimestamp
	ValueList
	ValueStructure
)

var valueTypeNames = map[ValueType]string{
	ValueNone:      "None",
	ValueBoolean:   "Boolean",
	ValueInteger:   "Integer",
	ValueReal:      "Real",
	ValueString:    "String",
	ValueBinary:    "Binary",
	ValueDate:      "Date",
	ValueTime:      "Time",
	ValueTimestamp: "Timestamp",
	ValueList:      "List",
	ValueStructure: "Structure",
}

// String returns the value type name.
func (t ValueType) String() string {
	if s, ok := valueTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// Value is the message representation of a typed value.
//
// CBOR encoding:
//
//	{
//	  1: type,        // ValueType
//	  2: boolean,
//	  3: integer,
//	  4: real,
//	  5: string,
//	  6: bytes,       // inline binary
//	  7: binaryRef,   // binary transfer UUID
//	  8: date,
//	  9: time,
//	  10: timestamp,
//	  11: elements,   // list
//	  12: fields      // structure, keyed by element identifier
//	}
type Value struct {
	Type      ValueType        `cbor:"1,keyasint"`
	Boolean   bool             `cbor:"2,keyasint,omitempty"`
	Integer   int64            `cbor:"3,keyasint,omitempty"`
	Real      float64          `cbor:"4,keyasint,omitempty"`
	String    string           `cbor:"5,keyasint,omitempty"`
	Bytes     []byte           `cbor:"6,keyasint,omitempty"`
	BinaryRef string           `cbor:"7,keyasint,omitempty"`
	Date      *DateValue       `cbor:"8,keyasint,omitempty"`
	Time      *TimeValue       `cbor:"9,keyasint,omitempty"`
	Timestamp *TimestampValue  `cbor:"10,keyasint,omitempty"`
	Elements  []Value          `cbor:"11,keyasint,omitempty"`
	Fields    map[string]Value `cbor:"12,keyasint,omitempty"`
}

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{Type: ValueBoolean, Boolean: b} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{Type: ValueInteger, Integer: i} }

// Real returns a Real value.
func Real(f float64) Value { return Value{Type: ValueReal, Real: f} }

// Str returns a String value.
func Str(s string) Value { return Value{Type: ValueString, String: s} }

// Bytes returns an inline Binary value.
func Bytes(b []byte) Value { return Value{Type: ValueBinary, Bytes: b} }

// BinaryRef returns a Binary value referring to a binary transfer UUID.
func BinaryRef(id string) Value { return Value{Type: ValueBinary, BinaryRef: id} }

// List returns a List value.
func List(elems ...Value) Value { return Value{Type: ValueList, Elements: elems} }

// Struct returns a Structure value.
func Struct(fields map[string]Value) Value { return Value{Type: ValueStructure, Fields: fields} }

// Zone is a UTC offset on the wire.
type Zone struct {
	Hours   int8  `cbor:"1,keyasint,omitempty"`
	Minutes uint8 `cbor:"2,keyasint,omitempty"`
}

// DateValue is a calendar day.
type DateValue struct {
	Year  uint16 `cbor:"1,keyasint"`
	Month uint8  `cbor:"2,keyasint"`
	Day   uint8  `cbor:"3,keyasint"`
	Zone  Zone   `cbor:"4,keyasint"`
}

// TimeValue is a time of day with millisecond precision.
type TimeValue struct {
	Hour        uint8  `cbor:"1,keyasint"`
	Minute      uint8  `cbor:"2,keyasint"`
	Second      uint8  `cbor:"3,keyasint"`
	Millisecond uint16 `cbor:"4,keyasint,omitempty"`
	Zone        Zone   `cbor:"5,keyasint"`
}

// TimestampValue is a date and time of day.
type TimestampValue struct {
	Date DateValue `cbor:"1,keyasint"`
	Time TimeValue `cbor:"2,keyasint"`
}

// DateOf returns a Date value.
func DateOf(d native.Date) Value {
	v := dateValue(d.Year, d.Month, d.Day, d.Timezone)
	return Value{Type: ValueDate, Date: &v}
}

// TimeOf returns a Time value.
func TimeOf(t native.Time) Value {
	v := timeValue(t.Hour, t.Minute, t.Second, t.Millisecond, t.Timezone)
	return Value{Type: ValueTime, Time: &v}
}

// TimestampOf returns a Timestamp value.
func TimestampOf(ts native.Timestamp) Value {
	return Value{Type: ValueTimestamp, Timestamp: &TimestampValue{
		Date: dateValue(ts.Year, ts.Month, ts.Day, ts.Timezone),
		Time: timeValue(ts.Hour, ts.Minute, ts.Second, ts.Millisecond, ts.Timezone),
	}}
}

// Native converts the wire date. The result is not validated.
func (d DateValue) Native() native.Date {
	return native.Date{Year: int(d.Year), Month: int(d.Month), Day: int(d.Day), Timezone: d.Zone.native()}
}

// Native converts the wire time. The result is not validated.
func (t TimeValue) Native() native.Time {
	return native.Time{
		Hour: int(t.Hour), Minute: int(t.Minute), Second: int(t.Second),
		Millisecond: int(t.Millisecond), Timezone: t.Zone.native(),
	}
}

// Native converts the wire timestamp. The date's zone is authoritative.
func (ts TimestampValue) Native() native.Timestamp {
	return native.Timestamp{
		Year: int(ts.Date.Year), Month: int(ts.Date.Month), Day: int(ts.Date.Day),
		Hour: int(ts.Time.Hour), Minute: int(ts.Time.Minute), Second: int(ts.Time.Second),
		Millisecond: int(ts.Time.Millisecond), Timezone: ts.Date.Zone.native(),
	}
}

func (z Zone) native() native.Timezone {
	return native.Timezone{Hours: int(z.Hours), Minutes: int(z.Minutes)}
}

func zoneOf(z native.Timezone) Zone {
	return Zone{Hours: int8(z.Hours), Minutes: uint8(z.Minutes)}
}

func dateValue(y, m, d int, z native.Timezone) DateValue {
	return DateValue{Year: uint16(y), Month: uint8(m), Day: uint8(d), Zone: zoneOf(z)}
}

func timeValue(h, m, s, ms int, z native.Timezone) TimeValue {
	return TimeValue{Hour: uint8(h), Minute: uint8(m), Second: uint8(s), Millisecond: uint16(ms), Zone: zoneOf(z)}
}
