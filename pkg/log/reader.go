package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	ServerID string

	// TargetPrefix matches FQIs case-insensitively, so a feature FQI selects
	// the events of all its commands and properties.
	TargetPrefix string

	// Entity selects state changes of one kind of entity.
	Entity *StateEntity
}

// Match reports whether event passes the filter.
func (f *Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	case f.ServerID != "" && event.ServerID != f.ServerID:
		return false
	case f.TargetPrefix != "" && !strings.HasPrefix(strings.ToLower(event.Target), strings.ToLower(f.TargetPrefix)):
		return false
	case f.Entity != nil && (event.StateChange == nil || event.StateChange.Entity != *f.Entity):
		return false
	}
	return true
}

// Reader streams the events of a capture file.
type Reader struct {
	file    *os.File
	dec     *cbor.Decoder
	filter  Filter
	header  *Header
	pending cbor.RawMessage
}

// NewReader opens a capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file whose Next only returns events
// matching filter. The header, if any, is read right away.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{file: f, dec: NewDecoder(f), filter: filter}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	var raw cbor.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	h, ok := decodeHeader(raw)
	if !ok {
		r.pending = raw
		return nil
	}
	if h.Version > CaptureVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedCapture, h.Version)
	}
	r.header = &h
	return nil
}

// Header returns the capture header. Files without one report false.
func (r *Reader) Header() (Header, bool) {
	if r.header == nil {
		return Header{}, false
	}
	return *r.header, true
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		raw := r.pending
		r.pending = nil
		if raw == nil {
			if err := r.dec.Decode(&raw); err != nil {
				return Event{}, err
			}
		}
		if _, ok := decodeHeader(raw); ok {
			continue
		}
		event, err := DecodeEvent(raw)
		if err != nil {
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Events iterates the remaining matching events. Iteration stops after the
// first error, which is yielded with a zero event.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
