// Package discovery announces and finds SiLA servers with mDNS/DNS-SD.
//
// Servers register the "_sila._tcp" service with their UUID as instance
// name. TXT records carry:
//
//   - uuid: server UUID
//   - name: server name
//   - type: server type
//   - version: server version
//   - desc: description (optional, truncated)
//   - tls: "1" when the server requires TLS
//
// Clients browse with MDNSBrowser and dial one of the returned addresses.
package discovery
