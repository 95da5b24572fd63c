// Package log captures protocol events of SiLA servers and clients.
//
// Capture is separate from operational logging with slog: it records every
// frame, decoded message, execution and binary state change, chunk transfer
// and error as an Event, so a session can be replayed and analysed later.
//
// Components take a Logger in their ProtocolLogger field:
//
//	capture, _ := log.NewFileLogger("server.slog", log.WithRole(log.RoleServer))
//	cfg.ProtocolLogger = log.Multi(capture, log.NewSlogAdapter(slog.Default()))
//
// # Capture files
//
// A capture file is a stream of CBOR records with integer keys. A new file
// starts with a Header naming the format version, creation time and role.
// Reader skips headers, including those of captures joined with cat, and
// iterates the events matching a Filter.
package log
