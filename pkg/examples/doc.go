// Package examples provides reference features built with the sila-go
// library. Each feature embeds its YAML definition and registers its
// handlers on a model.Builder:
//
//   - GreetingProvider: a minimal feature with one command and one property
//   - ObservableCommandTest: observable commands with progress, estimated
//     remaining time and intermediate responses
//   - BinaryTransferTest: inline and chunked binaries, and client metadata
//   - ObservablePropertyTest: observable properties, one of them settable
//
// The sila-server command serves all of them.
package examples
