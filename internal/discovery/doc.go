// Package discovery advertises and finds qcdiag relays over mDNS.
//
// A relay publishes the "_qcdiag._tcp" service with TXT records naming
// its websocket path, its version and the diag port it serves. The
// qcdiag discover command browses for that service and prints a ready to
// use --relay URL for each answer.
//
// # Usage Example
//
//	relays, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, r := range relays {
//	    fmt.Println(r.Instance, r.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Relays must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
