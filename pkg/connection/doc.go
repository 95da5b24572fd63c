// Package connection keeps a client connection to a SiLA server alive.
//
// A Manager dials the server, watches the connection and, when it drops,
// dials again with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to the initial delay on successful reconnection
//
// # Jitter
//
// To keep clients of a restarted server from reconnecting in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Executions and binaries live on the server, not on the connection, so a
// client that reconnects can still query executions it started before.
// Property and execution subscriptions end with the connection and must be
// opened again, typically from the OnConnected callback.
package connection
