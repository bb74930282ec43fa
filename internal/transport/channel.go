package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is a half-duplex request/response pipe to a diag port.
//
// Send returns the unframed reply. An empty, nil-error reply means the device
// did not answer within the response timeout. Errors are reserved for a
// broken link (closed port, unplugged device, cancelled context).
type Channel interface {
	Send(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// DefaultResponseTimeout bounds how long Send waits for a reply.
const DefaultResponseTimeout = 2 * time.Second

// Kind selects a transport implementation.
type Kind string

const (
	KindUSB    Kind = "usb"
	KindSerial Kind = "serial"
	KindRelay  Kind = "relay"
)

// Options describe how to reach a diag port.
type Options struct {
	Kind            Kind
	Serial          SerialConfig
	USB             USBConfig
	RelayURL        string
	ResponseTimeout time.Duration
}

// Open connects the transport described by opts. The returned channel has
// already drained any frames the device had queued.
func Open(ctx context.Context, opts Options) (Channel, error) {
	timeout := opts.ResponseTimeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	switch opts.Kind {
	case KindSerial:
		cfg := opts.Serial
		if cfg.ResponseTimeout == 0 {
			cfg.ResponseTimeout = timeout
		}
		ch, err := OpenSerial(cfg)
		if err != nil {
			return nil, err
		}
		ch.Drain(ctx)
		return ch, nil
	case KindUSB, "":
		cfg := opts.USB
		if cfg.ResponseTimeout == 0 {
			cfg.ResponseTimeout = timeout
		}
		ch, err := OpenUSB(cfg)
		if err != nil {
			return nil, err
		}
		ch.Drain(ctx)
		return ch, nil
	case KindRelay:
		if opts.RelayURL == "" {
			return nil, fmt.Errorf("relay transport requires an address")
		}
		return DialRelay(ctx, opts.RelayURL, timeout)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", opts.Kind)
	}
}
