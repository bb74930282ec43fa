package diag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/muurk/qcdiag/internal/protocol"
)

func TestNewProtocolMismatchRoutesSecurityFrames(t *testing.T) {
	tests := []struct {
		name string
		resp []byte
		want ErrorKind
	}{
		{name: "bad parameter", resp: []byte{0x14}, want: KindProtocolMismatch},
		{name: "bad command", resp: []byte{0x13, 0x26}, want: KindProtocolMismatch},
		{name: "security required", resp: []byte{0x47}, want: KindSecurityGate},
		{name: "security mode", resp: []byte{0x17}, want: KindSecurityGate},
		{name: "empty", resp: nil, want: KindTransportEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProtocolMismatch("nv read 550", tt.resp)
			if err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		isEngine bool
	}{
		{name: "empty", err: protocol.ErrEmptyResponse, wantKind: KindTransportEmpty, isEngine: true},
		{name: "mismatch", err: &protocol.MismatchError{Want: 0x26, Got: 0x14}, wantKind: KindProtocolMismatch, isEngine: true},
		{name: "rejected security", err: &protocol.RejectedError{Opcode: protocol.CmdBadSecMode}, wantKind: KindSecurityGate, isEngine: true},
		{name: "rejected length", err: &protocol.RejectedError{Opcode: protocol.CmdBadLength}, wantKind: KindProtocolMismatch, isEngine: true},
		{name: "short", err: fmt.Errorf("%w: need 12", protocol.ErrShortResponse), wantKind: KindProtocolMismatch, isEngine: true},
		{name: "cancelled", err: context.Canceled, isEngine: false},
		{name: "already classified", err: NewExhaustedMethod("efs"), wantKind: KindExhaustedMethod, isEngine: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap("op", tt.err)
			kind, ok := KindOf(err)
			if ok != tt.isEngine {
				t.Fatalf("KindOf() ok = %v, want %v (err %v)", ok, tt.isEngine, err)
			}
			if ok && kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}

	if Wrap("op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if !errors.Is(Wrap("op", context.Canceled), context.Canceled) {
		t.Error("cancellation should stay inspectable")
	}
}

func TestPredicates(t *testing.T) {
	if !IsTransportEmpty(NewTransportEmpty("x")) {
		t.Error("IsTransportEmpty")
	}
	if !IsVerificationFailure(NewVerificationFailure("x", []byte{1}, []byte{2})) {
		t.Error("IsVerificationFailure")
	}
	if !IsDomainError(fmt.Errorf("wrapped: %w", NewDomainError("x", 5, "Inactive Item"))) {
		t.Error("IsDomainError through wrapping")
	}
	if !IsExhaustedMethod(NewExhaustedMethod("x")) || !IsSecurityGate(NewSecurityGate("x", 0x47)) {
		t.Error("IsExhaustedMethod / IsSecurityGate")
	}
	if IsProtocolMismatch(errors.New("plain")) {
		t.Error("plain errors have no kind")
	}
}

func TestErrorString(t *testing.T) {
	err := NewDomainError("efs open /x", uint32(protocol.EfsErrInvalidPath), "Invalid path")
	if got := err.Error(); got != "efs open /x: Device Error: Invalid path" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(NewTransportEmpty("x"), protocol.ErrEmptyResponse) {
		t.Error("TransportEmpty should unwrap to ErrEmptyResponse")
	}
}

func TestHints(t *testing.T) {
	if !strings.Contains(TroubleshootingHint(NewSecurityGate("x", 0x47)), "qcdiag sp") {
		t.Error("security hint should mention qcdiag sp")
	}
	if got := ShortMessage(NewTransportEmpty("x")); got != "Device not responding" {
		t.Errorf("ShortMessage() = %q", got)
	}
	if got := ShortMessage(errors.New("boom")); got != "boom" {
		t.Errorf("ShortMessage(plain) = %q", got)
	}
}
