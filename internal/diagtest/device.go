// Package diagtest provides scripted fake diag devices for tests.
package diagtest

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/muurk/qcdiag/internal/transport"
)

// HandlerFunc answers one request. Returning nil or an empty slice
// simulates a device that did not answer.
type HandlerFunc func(req []byte) []byte

// Device is an in-memory transport.Channel. Scripted replies are consumed
// first; after that the handler (if any) answers.
type Device struct {
	mu       sync.Mutex
	handler  HandlerFunc
	script   [][]byte
	requests [][]byte
	closed   bool
}

var _ transport.Channel = (*Device)(nil)

// New returns a device answering with h.
func New(h HandlerFunc) *Device {
	return &Device{handler: h}
}

// Scripted returns a device that replies with resps in order and then
// stops answering.
func Scripted(resps ...[]byte) *Device {
	return &Device{script: resps}
}

// Queue appends scripted replies.
func (d *Device) Queue(resps ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, resps...)
}

// Send records req and returns the next reply.
func (d *Device) Send(ctx context.Context, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, transport.ErrClosed
	}
	d.requests = append(d.requests, append([]byte(nil), req...))

	var resp []byte
	switch {
	case len(d.script) > 0:
		resp = d.script[0]
		d.script = d.script[1:]
	case d.handler != nil:
		resp = d.handler(req)
	}
	if resp == nil {
		resp = []byte{}
	}
	return append([]byte{}, resp...), nil
}

// Close marks the device closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Requests returns a copy of every request received so far.
func (d *Device) Requests() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.requests))
	copy(out, d.requests)
	return out
}

// LE32 encodes values as consecutive little-endian uint32 words.
func LE32(vals ...uint32) []byte {
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}
