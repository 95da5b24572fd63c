// Package native defines the Go-side representations of temporal values and
// the ordering used by range constraints.
package native

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidValue is returned when a temporal value is out of range.
var ErrInvalidValue = errors.New("invalid temporal value")

// Timezone is a fixed UTC offset. Minutes extend the offset away from zero.
type Timezone struct {
	Hours   int
	Minutes int
}

// UTC is the zero offset.
var UTC = Timezone{}

// Validate checks the offset bounds (-12..+14 hours, 0..59 minutes).
func (z Timezone) Validate() error {
	if z.Hours < -12 || z.Hours > 14 || z.Minutes < 0 || z.Minutes > 59 {
		return fmt.Errorf("%w: timezone %+d:%02d", ErrInvalidValue, z.Hours, z.Minutes)
	}
	return nil
}

// Offset returns the offset from UTC.
func (z Timezone) Offset() time.Duration {
	d := time.Duration(z.Hours)*time.Hour + time.Duration(z.Minutes)*time.Minute
	if z.Hours < 0 {
		d = time.Duration(z.Hours)*time.Hour - time.Duration(z.Minutes)*time.Minute
	}
	return d
}

// Location returns a fixed-zone location for the offset.
func (z Timezone) Location() *time.Location {
	return time.FixedZone("", int(z.Offset()/time.Second))
}

// TimezoneOf extracts the offset of t's location.
func TimezoneOf(t time.Time) Timezone {
	_, secs := t.Zone()
	d := time.Duration(secs) * time.Second
	if d < 0 {
		d = -d
		return Timezone{Hours: -int(d / time.Hour), Minutes: int(d%time.Hour) / int(time.Minute)}
	}
	return Timezone{Hours: int(d / time.Hour), Minutes: int(d%time.Hour) / int(time.Minute)}
}

// Date is a calendar day in a given timezone.
type Date struct {
	Year     int
	Month    int
	Day      int
	Timezone Timezone
}

// Validate checks that the date exists in the Gregorian calendar.
func (d Date) Validate() error {
	if d.Year < 1 || d.Year > 9999 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return fmt.Errorf("%w: date %04d-%02d-%02d", ErrInvalidValue, d.Year, d.Month, d.Day)
	}
	if d.Day > daysIn(d.Year, d.Month) {
		return fmt.Errorf("%w: date %04d-%02d-%02d", ErrInvalidValue, d.Year, d.Month, d.Day)
	}
	return d.Timezone.Validate()
}

// Instant returns midnight of the date in its timezone.
func (d Date) Instant() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, d.Timezone.Location())
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d%s", d.Year, d.Month, d.Day, d.Timezone.suffix())
}

// Time is a time of day in a given timezone, with millisecond precision.
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Millisecond int
	Timezone    Timezone
}

// Validate checks the field ranges.
func (t Time) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 ||
		t.Second < 0 || t.Second > 59 || t.Millisecond < 0 || t.Millisecond > 999 {
		return fmt.Errorf("%w: time %02d:%02d:%02d.%03d", ErrInvalidValue, t.Hour, t.Minute, t.Second, t.Millisecond)
	}
	return t.Timezone.Validate()
}

// sinceMidnightUTC returns the UTC-normalised time of day.
func (t Time) sinceMidnightUTC() time.Duration {
	d := time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second + time.Duration(t.Millisecond)*time.Millisecond
	d -= t.Timezone.Offset()
	day := 24 * time.Hour
	return ((d % day) + day) % day
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d%s", t.Hour, t.Minute, t.Second, t.Millisecond, t.Timezone.suffix())
}

// Timestamp is a date and time of day in a given timezone.
type Timestamp struct {
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
	Timezone    Timezone
}

// TimestampOf converts a time.Time, truncating to milliseconds.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{
		Year:        t.Year(),
		Month:       int(t.Month()),
		Day:         t.Day(),
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
		Timezone:    TimezoneOf(t),
	}
}

// Validate checks the date and time parts.
func (ts Timestamp) Validate() error {
	if err := (Date{Year: ts.Year, Month: ts.Month, Day: ts.Day, Timezone: ts.Timezone}).Validate(); err != nil {
		return err
	}
	return Time{Hour: ts.Hour, Minute: ts.Minute, Second: ts.Second, Millisecond: ts.Millisecond, Timezone: ts.Timezone}.Validate()
}

// Time returns the instant the timestamp denotes.
func (ts Timestamp) Time() time.Time {
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second,
		ts.Millisecond*int(time.Millisecond), ts.Timezone.Location())
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03d%s",
		ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Millisecond, ts.Timezone.suffix())
}

func (z Timezone) suffix() string {
	if z == UTC {
		return "Z"
	}
	sign := '+'
	h := z.Hours
	if h < 0 {
		sign = '-'
		h = -h
	}
	return fmt.Sprintf("%c%02d:%02d", sign, h, z.Minutes)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Compare orders two values of the same ordered kind (int64, float64, Date,
// Time, Timestamp). The boolean is false when the values are not comparable,
// which includes NaN on either side.
func Compare(a, b any) (int, bool) {
	if isNaN(a) || isNaN(b) {
		return 0, false
	}
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp(x, y), true
		case float64:
			return cmp(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp(x, y), true
		case int64:
			return cmp(x, float64(y)), true
		}
	case Date:
		if y, ok := b.(Date); ok {
			return x.Instant().Compare(y.Instant()), true
		}
	case Time:
		if y, ok := b.(Time); ok {
			return cmp(x.sinceMidnightUTC(), y.sinceMidnightUTC()), true
		}
	case Timestamp:
		if y, ok := b.(Timestamp); ok {
			return x.Time().Compare(y.Time()), true
		}
	}
	return 0, false
}

func isNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func cmp[T int64 | float64 | time.Duration](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
