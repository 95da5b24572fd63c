// Package transport carries encoded SiLA messages between clients and servers.
//
// The transport layer handles:
//   - TCP connections, optionally secured with TLS 1.3
//   - Length-prefixed message framing
//   - Connection lifecycle events
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│   TLS 1.3 (optional)           │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # TLS
//
// A nil TLSConfig runs plain TCP. With TLS the server presents a certificate,
// which may be generated with GenerateSelfSigned, and negotiates the "sila/1"
// ALPN protocol. Client certificates are optional unless RequireClientCert is
// set.
//
// # Liveness
//
// There are no protocol-level ping messages. Both ends enable TCP keep-alive
// (DefaultKeepAlive) and treat a failed read as a disconnect.
package transport
