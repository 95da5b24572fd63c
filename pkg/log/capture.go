package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureFormat marks the header record of a capture file.
const CaptureFormat = "sila-capture"

// CaptureVersion is the capture file version written by FileLogger.
const CaptureVersion = 1

// ErrUnsupportedCapture is returned for capture files of a newer version.
var ErrUnsupportedCapture = errors.New("unsupported capture version")

// Header is the first record of a capture file. It uses keys no Event uses,
// so a reader can tell both apart. Files concatenated with cat may carry
// further headers; Reader skips them.
type Header struct {
	Format   string    `cbor:"0,keyasint"`
	Version  int       `cbor:"20,keyasint"`
	Created  time.Time `cbor:"21,keyasint"`
	Role     Role      `cbor:"22,keyasint"`
	ServerID string    `cbor:"23,keyasint,omitempty"`
}

var (
	captureEnc cbor.EncMode
	captureDec cbor.DecMode
)

func init() {
	var err error
	captureEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture encoder mode: %v", err))
	}
	captureDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture decoder mode: %v", err))
	}
}

// EncodeEvent encodes one event as a CBOR map with integer keys.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := captureDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a CBOR stream encoder for capture records.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEnc.NewEncoder(w)
}

// NewDecoder returns a CBOR stream decoder for capture records.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}

// decodeHeader reports whether raw is a capture header.
func decodeHeader(raw cbor.RawMessage) (Header, bool) {
	var h Header
	if captureDec.Unmarshal(raw, &h) != nil || h.Format != CaptureFormat {
		return Header{}, false
	}
	return h, true
}
