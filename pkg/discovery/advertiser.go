package discovery

import (
	"context"
	"time"
)

// Advertiser announces a server on the local network.
type Advertiser interface {
	// Advertise starts announcing the server, replacing any previous
	// announcement.
	Advertise(ctx context.Context, info *ServerInfo) error

	// Update replaces the TXT records of the running announcement.
	Update(info *ServerInfo) error

	// Stop withdraws the announcement. Stopping twice is a no-op.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

// Browser finds servers on the local network.
type Browser interface {
	// Browse streams servers until ctx is done. Each server is delivered
	// once, when first seen.
	Browse(ctx context.Context) (<-chan *ServerService, error)

	// FindByUUID browses until the server with the given UUID shows up.
	FindByUUID(ctx context.Context, serverUUID string) (*ServerService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindByUUID when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}
