package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusValidationError indicates a value violates a constraint.
	// ErrorPayload.Identifier names the parameter.
	StatusValidationError Status = 1

	// StatusDecodeError indicates a malformed payload.
	StatusDecodeError Status = 2

	// StatusTypeError indicates a value of the wrong shape for its type.
	StatusTypeError Status = 3

	// StatusDefinedExecutionError indicates a command failed with one of
	// its declared errors. ErrorPayload.Identifier is the error FQI.
	StatusDefinedExecutionError Status = 4

	// StatusUndefinedExecutionError indicates any other command failure.
	StatusUndefinedExecutionError Status = 5

	// StatusInvalidExecutionUUID indicates an unknown or expired execution.
	StatusInvalidExecutionUUID Status = 6

	// StatusCommandExecutionNotFinished indicates results were requested
	// before the execution ended.
	StatusCommandExecutionNotFinished Status = 7

	// StatusBinaryUnknown indicates an unknown or expired binary.
	StatusBinaryUnknown Status = 8

	// StatusInvalidChunkIndex indicates an out-of-range or out-of-order chunk.
	StatusInvalidChunkIndex Status = 9

	// StatusInvalidIdentifier indicates the target FQI is malformed or
	// names nothing registered on the server.
	StatusInvalidIdentifier Status = 10

	// StatusInvalidMetadata indicates required metadata is missing or invalid.
	StatusInvalidMetadata Status = 11

	// StatusBinaryUploadFailed indicates an upload could not be accepted.
	StatusBinaryUploadFailed Status = 12

	// StatusBinaryDownloadFailed indicates a download could not be served.
	StatusBinaryDownloadFailed Status = 13

	// StatusUnsupported indicates the operation does not apply to the target.
	StatusUnsupported Status = 14
)

var statusNames = map[Status]string{
	StatusSuccess:                     "SUCCESS",
	StatusValidationError:             "VALIDATION_ERROR",
	StatusDecodeError:                 "DECODE_ERROR",
	StatusTypeError:                   "TYPE_ERROR",
	StatusDefinedExecutionError:       "DEFINED_EXECUTION_ERROR",
	StatusUndefinedExecutionError:     "UNDEFINED_EXECUTION_ERROR",
	StatusInvalidExecutionUUID:        "INVALID_EXECUTION_UUID",
	StatusCommandExecutionNotFinished: "COMMAND_EXECUTION_NOT_FINISHED",
	StatusBinaryUnknown:               "BINARY_UNKNOWN",
	StatusInvalidChunkIndex:           "INVALID_CHUNK_INDEX",
	StatusInvalidIdentifier:           "INVALID_IDENTIFIER",
	StatusInvalidMetadata:             "INVALID_METADATA",
	StatusBinaryUploadFailed:          "BINARY_UPLOAD_FAILED",
	StatusBinaryDownloadFailed:        "BINARY_DOWNLOAD_FAILED",
	StatusUnsupported:                 "UNSUPPORTED",
}

// String returns the status name.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

// ExecutionStatus is the lifecycle state of an observable command execution.
type ExecutionStatus uint8

const (
	ExecutionWaiting ExecutionStatus = iota
	ExecutionRunning
	ExecutionFinishedSuccessfully
	ExecutionFinishedWithError
)

// String returns the execution status name.
func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionWaiting:
		return "waiting"
	case ExecutionRunning:
		return "running"
	case ExecutionFinishedSuccessfully:
		return "finishedSuccessfully"
	case ExecutionFinishedWithError:
		return "finishedWithError"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the execution has finished.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionFinishedSuccessfully || s == ExecutionFinishedWithError
}
