package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/version"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type relays advertise.
	ServiceType = "_qcdiag._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for relay discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPath is the websocket endpoint when a relay has no path record.
	DefaultPath = "/diag"
)

// TXT record keys.
const (
	TxtPath    = "path"
	TxtVersion = "version"
	TxtDevice  = "device"
)

// Scanner browses for relays.
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan returns every relay that answered before the timeout.
func (s *Scanner) Scan(ctx context.Context) ([]*Relay, error) {
	var relays []*Relay
	err := s.browse(ctx, func(r *Relay) bool {
		relays = append(relays, r)
		return true
	})
	return relays, err
}

// Find waits for the relay with the given instance name.
func (s *Scanner) Find(ctx context.Context, instance string) (*Relay, error) {
	var found *Relay
	err := s.browse(ctx, func(r *Relay) bool {
		if r.Instance == instance {
			found = r
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("relay %q not found within %s", instance, s.Timeout)
	}
	return found, nil
}

// browse feeds parsed relays to visit until it returns false or the timeout
// expires. visit runs on one goroutine; browse returns after it is done.
func (s *Scanner) browse(ctx context.Context, visit func(*Relay) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for entry := range entries {
			r := parseServiceEntry(entry)
			if r == nil || seen[r.Instance] {
				continue
			}
			seen[r.Instance] = true
			if !visit(r) {
				cancel()
				// keep draining until the resolver closes the channel
				visit = func(*Relay) bool { return false }
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseServiceEntry converts a zeroconf entry into a Relay. It returns nil
// for entries without an address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Relay {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	instance := entry.Instance
	if instance == "" {
		instance = strings.TrimSuffix(entry.HostName, ".")
	}

	return &Relay{
		Instance:     instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement describes the relay being published.
type Advertisement struct {
	Instance string
	Port     int
	Path     string
	// Device names the attached diag port, e.g. "/dev/ttyUSB0" or "05c6:9091".
	Device string
}

// TXT returns the records published for a.
func (a Advertisement) TXT() []string {
	path := a.Path
	if path == "" {
		path = DefaultPath
	}
	txt := []string{TxtPath + "=" + path, TxtVersion + "=" + version.Version}
	if a.Device != "" {
		txt = append(txt, TxtDevice+"="+a.Device)
	}
	return txt
}

// Advertise publishes a until ctx is cancelled.
func Advertise(ctx context.Context, a Advertisement) error {
	server, err := zeroconf.Register(a.Instance, ServiceType, ServiceDomain, a.Port, a.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising relay over mDNS",
		zap.String("instance", a.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", a.Port))

	<-ctx.Done()
	server.Shutdown()
	return nil
}
