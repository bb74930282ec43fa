package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/qcdiag/internal/version"
)

func entry(instance, host string, port int, ips []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = ips
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		instance string
		url      string
	}{
		{
			name:     "relay with path record",
			entry:    entry("lab-pi", "lab-pi.local.", 8765, []net.IP{net.ParseIP("192.168.4.16")}, "path=/diag", "version=v0.3.0", "device=/dev/ttyUSB0"),
			instance: "lab-pi",
			url:      "ws://192.168.4.16:8765/diag",
		},
		{
			name:     "no path record uses default",
			entry:    entry("bench", "bench.local.", 9000, []net.IP{net.ParseIP("10.0.0.5")}),
			instance: "bench",
			url:      "ws://10.0.0.5:9000/diag",
		},
		{
			name:     "custom path",
			entry:    entry("x", "x.local.", 80, []net.IP{net.ParseIP("10.0.0.6")}, "path=/modem0"),
			instance: "x",
			url:      "ws://10.0.0.6:80/modem0",
		},
		{
			name: "ipv6 only",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("v6", "v6.local.", 8765, nil)
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
				return e
			}(),
			instance: "v6",
			url:      "ws://[fe80::1]:8765/diag",
		},
		{
			name:    "no address",
			entry:   entry("ghost", "ghost.local.", 8765, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   entry("ghost", "ghost.local.", 0, []net.IP{net.ParseIP("10.0.0.7")}),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if r != nil {
					t.Fatalf("parseServiceEntry() = %v, want nil", r)
				}
				return
			}
			if r == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if r.Instance != tt.instance {
				t.Errorf("Instance = %q, want %q", r.Instance, tt.instance)
			}
			if got := r.URL(); got != tt.url {
				t.Errorf("URL() = %q, want %q", got, tt.url)
			}
			if time.Since(r.DiscoveredAt) > time.Minute {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	r := parseServiceEntry(entry("lab", "lab.local.", 1, []net.IP{net.ParseIP("10.0.0.1")}, "device=05c6:9091", "flag"))
	if r.GetMetadata(TxtDevice) != "05c6:9091" {
		t.Errorf("device = %q", r.GetMetadata(TxtDevice))
	}
	if _, ok := r.Metadata["flag"]; !ok {
		t.Error("key without value dropped")
	}
	if (&Relay{}).GetMetadata("x") != "" {
		t.Error("nil metadata should read as empty")
	}
}

func TestAdvertisementTXT(t *testing.T) {
	txt := Advertisement{Instance: "lab", Port: 8765, Device: "/dev/ttyUSB0"}.TXT()
	want := []string{"path=/diag", "version=" + version.Version, "device=/dev/ttyUSB0"}
	if len(txt) != len(want) {
		t.Fatalf("TXT() = %v, want %v", txt, want)
	}
	for i := range want {
		if txt[i] != want[i] {
			t.Errorf("TXT()[%d] = %q, want %q", i, txt[i], want[i])
		}
	}

	if got := (Advertisement{Path: "/m"}).TXT(); len(got) != 2 || got[0] != "path=/m" {
		t.Errorf("TXT() without device = %v", got)
	}
}

func TestRelayString(t *testing.T) {
	r := &Relay{Instance: "lab", Hostname: "lab.local.", IP: "10.1.1.1", Port: 8765}
	if got := r.String(); got != "qcdiag relay lab (lab.local.) at ws://10.1.1.1:8765/diag" {
		t.Errorf("String() = %q", got)
	}
}
