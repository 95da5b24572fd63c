package wire

// Operation identifies what a request asks the server to do.
type Operation uint8

const (
	// OpGetProperty reads an unobservable property once.
	OpGetProperty Operation = 1

	// OpSubscribeProperty streams the values of an observable property.
	OpSubscribeProperty Operation = 2

	// OpInvoke calls a command. Observable commands answer with a
	// CommandConfirmation, unobservable ones with their responses.
	OpInvoke Operation = 3

	// OpExecutionInfo returns the current ExecutionInfo of an execution.
	OpExecutionInfo Operation = 4

	// OpSubscribeExecution streams ExecutionInfo until the execution ends.
	OpSubscribeExecution Operation = 5

	// OpSubscribeIntermediate streams intermediate responses.
	OpSubscribeIntermediate Operation = 6

	// OpResult fetches the responses of a finished execution.
	OpResult Operation = 7

	// OpCancel asks the server to cancel a running execution.
	OpCancel Operation = 8

	// OpUnsubscribe ends a subscription.
	OpUnsubscribe Operation = 9

	// OpCreateBinaryUpload announces a large binary the client will upload.
	OpCreateBinaryUpload Operation = 10

	// OpUploadChunk sends one chunk of an upload.
	OpUploadChunk Operation = 11

	// OpCreateBinaryDownload returns size and chunk count of a server binary.
	OpCreateBinaryDownload Operation = 12

	// OpGetChunk fetches one chunk of a download.
	OpGetChunk Operation = 13

	// OpDeleteBinary releases a binary before its lifetime ends.
	OpDeleteBinary Operation = 14
)

var operationNames = map[Operation]string{
	OpGetProperty:           "GetProperty",
	OpSubscribeProperty:     "SubscribeProperty",
	OpInvoke:                "Invoke",
	OpExecutionInfo:         "ExecutionInfo",
	OpSubscribeExecution:    "SubscribeExecution",
	OpSubscribeIntermediate: "SubscribeIntermediate",
	OpResult:                "Result",
	OpCancel:                "Cancel",
	OpUnsubscribe:           "Unsubscribe",
	OpCreateBinaryUpload:    "CreateBinaryUpload",
	OpUploadChunk:           "UploadChunk",
	OpCreateBinaryDownload:  "CreateBinaryDownload",
	OpGetChunk:              "GetChunk",
	OpDeleteBinary:          "DeleteBinary",
}

// String returns the operation name.
func (o Operation) String() string {
	if s, ok := operationNames[o]; ok {
		return s
	}
	return "Unknown"
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpGetProperty && o <= OpDeleteBinary
}

// NeedsTarget returns true if the request must name a command or property FQI.
func (o Operation) NeedsTarget() bool {
	switch o {
	case OpGetProperty, OpSubscribeProperty, OpInvoke, OpCreateBinaryUpload:
		return true
	}
	return false
}

// IsSubscription returns true for operations that open a notification stream.
func (o Operation) IsSubscription() bool {
	switch o {
	case OpSubscribeProperty, OpSubscribeExecution, OpSubscribeIntermediate:
		return true
	}
	return false
}
