package interaction

import (
	"errors"
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/constraint"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Interaction errors.
var (
	ErrMalformedRequest     = errors.New("malformed request")
	ErrInvalidMetadata      = errors.New("invalid metadata")
	ErrUnknownTarget        = errors.New("unknown target")
	ErrNotObservable        = errors.New("property is not observable")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnsupported          = errors.New("unsupported operation")
)

// StatusFor maps an error onto its wire status. Execution errors are checked
// first: an undefined error caused by a bad response keeps its status.
// Undefined errors win over anything they wrap.
func StatusFor(err error) wire.Status {
	var de *execution.DefinedError
	var ue *execution.UndefinedError
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.As(err, &ue):
		return wire.StatusUndefinedExecutionError
	case errors.As(err, &de):
		return wire.StatusDefinedExecutionError
	case errors.Is(err, constraint.ErrValidation):
		return wire.StatusValidationError
	case errors.Is(err, datatype.ErrDecode), errors.Is(err, ErrMalformedRequest), errors.Is(err, wire.ErrNoPayload):
		return wire.StatusDecodeError
	case errors.Is(err, datatype.ErrType):
		return wire.StatusTypeError
	case errors.Is(err, execution.ErrInvalidExecutionUUID):
		return wire.StatusInvalidExecutionUUID
	case errors.Is(err, execution.ErrCommandExecutionNotFinished):
		return wire.StatusCommandExecutionNotFinished
	case errors.Is(err, binary.ErrBinaryUnknown):
		return wire.StatusBinaryUnknown
	case errors.Is(err, binary.ErrInvalidChunkIndex), errors.Is(err, binary.ErrChunkTooLarge):
		return wire.StatusInvalidChunkIndex
	case errors.Is(err, binary.ErrInvalidSize):
		return wire.StatusBinaryUploadFailed
	case errors.Is(err, fqi.ErrInvalidIdentifier), errors.Is(err, ErrUnknownTarget), errors.Is(err, ErrSubscriptionNotFound):
		return wire.StatusInvalidIdentifier
	case errors.Is(err, ErrInvalidMetadata):
		return wire.StatusInvalidMetadata
	case errors.Is(err, ErrNotObservable), errors.Is(err, ErrUnsupported), errors.Is(err, execution.ErrNoIntermediateResponses):
		return wire.StatusUnsupported
	default:
		return wire.StatusUndefinedExecutionError
	}
}

// ErrorPayloadFor describes err for the wire. The identifier is the defined
// error FQI or the name of the violated constraint, when there is one.
func ErrorPayloadFor(err error) *wire.ErrorPayload {
	var ue *execution.UndefinedError
	if errors.As(err, &ue) {
		return &wire.ErrorPayload{Message: ue.Message}
	}
	var de *execution.DefinedError
	if errors.As(err, &de) {
		return &wire.ErrorPayload{Message: de.Message, Identifier: de.ID.String()}
	}
	var ve *constraint.ValidationError
	if errors.As(err, &ve) {
		p := &wire.ErrorPayload{Message: err.Error(), Identifier: ve.Constraint.String()}
		var pe *datatype.PathError
		if errors.As(err, &pe) && pe.Path != "" {
			p.Message = fmt.Sprintf("%s: %s", pe.Path, ve.Error())
		}
		return p
	}
	return &wire.ErrorPayload{Message: err.Error()}
}

// errorResponse creates an error response.
func errorResponse(msgID uint32, err error) *wire.Response {
	return &wire.Response{
		MessageID: msgID,
		Status:    StatusFor(err),
		Error:     ErrorPayloadFor(err),
	}
}

// StatusError represents an error response from the server.
type StatusError struct {
	Status     wire.Status
	Message    string
	Identifier string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status.String()
}

// statusError creates an error from a failed response.
func statusError(status wire.Status, payload *wire.ErrorPayload) error {
	e := &StatusError{Status: status}
	if payload != nil {
		e.Message = payload.Message
		e.Identifier = payload.Identifier
	}
	return e
}
