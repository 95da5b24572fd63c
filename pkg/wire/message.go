package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MessageID 0 is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// Request is a call from a client to a server.
//
// CBOR encoding:
//
//	{
//	  1: messageId,   // uint32, never 0
//	  2: operation,   // uint8
//	  3: target,      // FQI of the addressed command or property (if any)
//	  4: payload,     // operation-specific, see payload.go
//	  5: metadata     // map FQI -> Value
//	}
type Request struct {
	MessageID uint32           `cbor:"1,keyasint"`
	Operation Operation        `cbor:"2,keyasint"`
	Target    string           `cbor:"3,keyasint,omitempty"`
	Payload   cbor.RawMessage  `cbor:"4,keyasint,omitempty"`
	Metadata  map[string]Value `cbor:"5,keyasint,omitempty"`
}

// NewRequest builds a request and encodes payload (which may be nil).
func NewRequest(messageID uint32, op Operation, target string, payload any) (*Request, error) {
	req := &Request{MessageID: messageID, Operation: op, Target: target}
	if payload != nil {
		data, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		req.Payload = data
	}
	return req, nil
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation.NeedsTarget() && r.Target == "" {
		return fmt.Errorf("operation %s requires a target", r.Operation)
	}
	return nil
}

// ErrNoPayload is returned when decoding an absent payload.
var ErrNoPayload = errors.New("message has no payload")

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// Response is the reply to a Request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,   // uint32: matches request
//	  2: status,      // uint8: 0=success, or error code
//	  3: payload,     // operation-specific response data (if success)
//	  4: error        // ErrorPayload (if not success)
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Error     *ErrorPayload   `cbor:"4,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// Notification is a server push for an active subscription.
//
// CBOR encoding:
//
//	{
//	  1: 0,                // messageId 0 = notification
//	  2: subscriptionId,   // uint32
//	  3: payload,          // subscription-specific
//	  4: final,            // true on the last notification of a subscription
//	  5: error             // set when the subscription ended with an error
//	}
type Notification struct {
	SubscriptionID uint32
	Payload        cbor.RawMessage
	Final          bool
	Error          *ErrorPayload
}

// DecodePayload decodes the notification payload into v.
func (n *Notification) DecodePayload(v any) error {
	return decodeRaw(n.Payload, v)
}

// ErrorPayload describes why a request failed.
//
// CBOR encoding:
//
//	{
//	  1: message,     // string: human-readable error message
//	  2: identifier   // defined-error FQI, violated constraint or offending node
//	}
type ErrorPayload struct {
	Message    string `cbor:"1,keyasint,omitempty"`
	Identifier string `cbor:"2,keyasint,omitempty"`
}

func decodeRaw(raw cbor.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrNoPayload
	}
	return Unmarshal(raw, v)
}
