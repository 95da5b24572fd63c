// Package wire defines the CBOR wire format of the SiLA-style protocol.
//
// Messages use CBOR (RFC 8949) with integer keys and are length-prefixed
// on the stream (see pkg/transport).
//
// # Message Types
//
//   - Request: client to server, one of the operations in operation.go
//   - Response: server to client, matched by messageId
//   - Notification: server to client, messageId 0, carries subscription data
//
// # Values
//
// Command parameters, responses and property values travel as Value, a
// tagged union of the basic types, lists and structures. Binaries are
// either inline bytes or a reference to a binary transfer UUID.
//
// # Nullable vs Absent
//
// Payload fields tagged omitempty are absent when unset. An absent
// estimated remaining time or lifetime means "unknown", not zero.
package wire
