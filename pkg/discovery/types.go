package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of SiLA servers.
	ServiceType = "_sila._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the default SiLA server port.
	DefaultPort = 50052

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// TXT record keys.
const (
	TXTKeyUUID        = "uuid"    // Server UUID (instance identity)
	TXTKeyName        = "name"    // Server name
	TXTKeyType        = "type"    // Server type
	TXTKeyVersion     = "version" // Server version
	TXTKeyDescription = "desc"    // Description (optional, truncated)
	TXTKeyTLS         = "tls"     // "1" when the server requires TLS
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen keeps each key=value string within one TXT character-string.
	MaxTXTValueLen = 200
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// ServerInfo is what a server announces about itself.
type ServerInfo struct {
	// UUID is the server UUID. It is also the instance name.
	UUID string

	// Name is the user-facing server name.
	Name string

	// Type is the server type, e.g. "TestServer".
	Type string

	// Version is the server version.
	Version string

	// Description is optional and truncated to MaxTXTValueLen.
	Description string

	// Secure is set when the server requires TLS.
	Secure bool

	// Port is the server's listen port.
	Port uint16
}

// InstanceName returns the mDNS instance name of the server.
func (i *ServerInfo) InstanceName() string {
	return i.UUID
}

// ServerService is a server found while browsing.
type ServerService struct {
	ServerInfo

	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the advertised host name.
	Host string

	// Addresses are the IPv4 and IPv6 addresses the server was seen on.
	Addresses []string
}
