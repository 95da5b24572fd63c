// Package binary implements out-of-band transfer of payloads too large to
// travel inline in a single message.
//
// # Uploads
//
// A client announces an upload with CreateUpload and receives a UUID. It
// then sends chunks in order with AppendChunk. A chunk is accepted only if
// its offset equals the number of bytes received so far; out-of-order and
// duplicate chunks fail with ErrInvalidChunkIndex and leave the upload
// unchanged. Once the declared size has been received the upload is
// Complete and can be consumed exactly once by Await.
//
//	Created -> Uploading -> Complete -> (consumed)
//
// # Downloads
//
// The server publishes large response values with Publish. Clients read
// them with GetChunk, again strictly in order. The binary is removed once
// its last byte has been served.
//
//	Available -> Downloading -> (consumed)
//
// # Expiry
//
// Every entry has an idle lifetime that restarts on each successful
// operation. Entries idle past Config.IdleTimeout are removed and further
// operations on their UUID fail with ErrBinaryUnknown.
//
// # Concurrency
//
// The registry map is only locked for lookup, insert and removal. Each
// entry has its own mutex, so independent transfers proceed in parallel
// while chunk appends for one UUID are serialised.
package binary
