package execution

import (
	"errors"
	"fmt"

	"github.com/sila-protocol/sila-go/pkg/fqi"
)

// Execution errors.
var (
	// ErrInvalidExecutionUUID indicates an unknown or expired execution.
	ErrInvalidExecutionUUID = errors.New("invalid command execution uuid")

	// ErrCommandExecutionNotFinished is returned for responses of a running execution.
	ErrCommandExecutionNotFinished = errors.New("command execution not finished")

	// ErrNoIntermediateResponses is returned when watching intermediate
	// responses of a command that declares none.
	ErrNoIntermediateResponses = errors.New("command has no intermediate responses")

	// ErrProgressRegressed indicates progress lower than previously reported.
	ErrProgressRegressed = errors.New("progress regressed")

	// ErrInvalidProgress indicates progress outside [0, 1].
	ErrInvalidProgress = errors.New("progress out of range")

	// ErrFinished is returned when reporting on a terminal execution.
	ErrFinished = errors.New("command execution finished")

	// ErrNotImplemented is the cause of invoking a command without handler.
	ErrNotImplemented = errors.New("command not implemented")

	// ErrCancelled is the cause of a cancelled execution.
	ErrCancelled = errors.New("command execution cancelled")
)

// DefinedError is a defined execution error raised by a handler. It must be
// one of the errors the command declares.
type DefinedError struct {
	ID      fqi.FQI
	Message string
}

// NewDefinedError creates a defined execution error.
func NewDefinedError(id fqi.FQI, format string, args ...any) *DefinedError {
	return &DefinedError{ID: id, Message: fmt.Sprintf(format, args...)}
}

func (e *DefinedError) Error() string {
	return fmt.Sprintf("defined execution error %s: %s", e.ID.Identifier(), e.Message)
}

// UndefinedError is any other failure of an execution.
type UndefinedError struct {
	Message string
	Err     error
}

func (e *UndefinedError) Error() string {
	return "undefined execution error: " + e.Message
}

func (e *UndefinedError) Unwrap() error { return e.Err }

func undefined(err error, format string, args ...any) *UndefinedError {
	return &UndefinedError{Message: fmt.Sprintf(format, args...), Err: err}
}
