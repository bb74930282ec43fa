package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Relay is a qcdiag-relay found on the network.
type Relay struct {
	// Instance is the advertised service instance, e.g. "lab-pi".
	Instance string

	// Hostname is the mDNS hostname, e.g. "lab-pi.local."
	Hostname string

	// IP is the first IPv4 address, or IPv6 when there is none.
	IP string

	Port int

	// Metadata holds the TXT records: path, version, device.
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the relay
func (r *Relay) String() string {
	return fmt.Sprintf("qcdiag relay %s (%s) at %s", r.Instance, r.Hostname, r.URL())
}

// URL returns the websocket URL to pass as --relay.
func (r *Relay) URL() string {
	path := r.GetMetadata(TxtPath)
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + net.JoinHostPort(r.IP, strconv.Itoa(r.Port)) + path
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (r *Relay) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}
