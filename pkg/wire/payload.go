package wire

// Payloads carried in Request.Payload and Response.Payload, per operation.

// InvokePayload carries the parameters of an OpInvoke request, keyed by
// parameter identifier.
type InvokePayload struct {
	Parameters map[string]Value `cbor:"1,keyasint,omitempty"`
}

// InvokeResponsePayload answers OpInvoke. Unobservable commands fill
// Responses, observable commands fill Confirmation.
type InvokeResponsePayload struct {
	Responses    map[string]Value     `cbor:"1,keyasint,omitempty"`
	Confirmation *CommandConfirmation `cbor:"2,keyasint,omitempty"`
}

// CommandConfirmation identifies a started observable command execution.
type CommandConfirmation struct {
	ExecutionUUID string `cbor:"1,keyasint"`

	// LifetimeMillis is how long the execution stays queryable after it
	// finishes. Zero means unbounded.
	LifetimeMillis int64 `cbor:"2,keyasint,omitempty"`
}

// ExecutionPayload addresses an execution in OpExecutionInfo,
// OpSubscribeExecution, OpSubscribeIntermediate, OpResult and OpCancel.
type ExecutionPayload struct {
	ExecutionUUID string `cbor:"1,keyasint"`
}

// ExecutionInfoPayload is a snapshot of an execution's state.
type ExecutionInfoPayload struct {
	Status ExecutionStatus `cbor:"1,keyasint"`

	// Progress is in [0,1]; nil when the command never reported any.
	Progress *float64 `cbor:"2,keyasint,omitempty"`

	// EstimatedRemainingMillis is nil when unknown.
	EstimatedRemainingMillis *int64 `cbor:"3,keyasint,omitempty"`

	// LifetimeMillis is the remaining retention once finished.
	LifetimeMillis *int64 `cbor:"4,keyasint,omitempty"`
}

// ResponsesPayload carries command responses (OpResult) or one
// intermediate response (OpSubscribeIntermediate notifications).
type ResponsesPayload struct {
	Responses map[string]Value `cbor:"1,keyasint,omitempty"`
}

// CancelResponse answers OpCancel.
type CancelResponse struct {
	Accepted bool `cbor:"1,keyasint"`
}

// PropertyValuePayload carries a property value (OpGetProperty response and
// OpSubscribeProperty notifications).
type PropertyValuePayload struct {
	Value Value `cbor:"1,keyasint"`
}

// SubscribeResponse answers every subscription operation.
type SubscribeResponse struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// UnsubscribePayload ends a subscription.
type UnsubscribePayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// CreateUploadPayload announces an upload. The request target is the FQI
// of the parameter the binary is destined for.
type CreateUploadPayload struct {
	TotalSize  uint64 `cbor:"1,keyasint"`
	ChunkCount uint32 `cbor:"2,keyasint"`
}

// BinaryInfoPayload answers OpCreateBinaryUpload and OpCreateBinaryDownload.
type BinaryInfoPayload struct {
	BinaryUUID     string `cbor:"1,keyasint"`
	TotalSize      uint64 `cbor:"2,keyasint,omitempty"`
	MaxChunkSize   uint32 `cbor:"3,keyasint,omitempty"`
	LifetimeMillis int64  `cbor:"4,keyasint,omitempty"`
}

// UploadChunkPayload sends one upload chunk.
type UploadChunkPayload struct {
	BinaryUUID string `cbor:"1,keyasint"`
	Offset     uint64 `cbor:"2,keyasint"`
	Data       []byte `cbor:"3,keyasint"`
}

// UploadChunkResponse answers OpUploadChunk.
type UploadChunkResponse struct {
	Received       uint64 `cbor:"1,keyasint"`
	LifetimeMillis int64  `cbor:"2,keyasint,omitempty"`
}

// BinaryPayload addresses a binary in OpCreateBinaryDownload and OpDeleteBinary.
type BinaryPayload struct {
	BinaryUUID string `cbor:"1,keyasint"`
}

// GetChunkPayload requests one download chunk.
type GetChunkPayload struct {
	BinaryUUID string `cbor:"1,keyasint"`
	Offset     uint64 `cbor:"2,keyasint"`
	Length     uint32 `cbor:"3,keyasint"`
}

// ChunkPayload answers OpGetChunk.
type ChunkPayload struct {
	Offset         uint64 `cbor:"1,keyasint"`
	Data           []byte `cbor:"2,keyasint"`
	LifetimeMillis int64  `cbor:"3,keyasint,omitempty"`
}
