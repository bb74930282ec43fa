package diag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/muurk/qcdiag/internal/transport"
)

// ErrorKind is the category of an engine failure.
type ErrorKind int

const (
	// KindProtocolMismatch means the reply did not echo the request opcode
	KindProtocolMismatch ErrorKind = iota
	// KindSecurityGate means the device wants SP or SPC first
	KindSecurityGate
	// KindTransportEmpty means the device did not answer
	KindTransportEmpty
	// KindDomainError means a decoded NV status or EFS errno reports failure
	KindDomainError
	// KindVerificationFailure means a write was accepted but reads back differently
	KindVerificationFailure
	// KindExhaustedMethod means neither EFS method answered the HELLO request
	KindExhaustedMethod
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocolMismatch:
		return "Protocol Mismatch"
	case KindSecurityGate:
		return "Security Gate"
	case KindTransportEmpty:
		return "No Response"
	case KindDomainError:
		return "Device Error"
	case KindVerificationFailure:
		return "Verification Failure"
	case KindExhaustedMethod:
		return "EFS Unavailable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a failed engine operation.
type Error struct {
	Kind    ErrorKind
	Op      string // e.g. "nv read 550", "efs open /policyman"
	Code    uint32 // leading byte, NV status or EFS errno, by Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewProtocolMismatch reports a reply whose leading byte is not the expected
// opcode. Security frames are routed to NewSecurityGate instead.
func NewProtocolMismatch(op string, resp []byte) *Error {
	if len(resp) == 0 {
		return NewTransportEmpty(op)
	}
	if protocol.ClassifyDiagStatus(resp[0]) == protocol.StatusSecurityRequired {
		return NewSecurityGate(op, resp[0])
	}
	return &Error{
		Kind:    KindProtocolMismatch,
		Op:      op,
		Code:    uint32(resp[0]),
		Message: protocol.DescribeDiagStatus(resp),
	}
}

// NewSecurityGate reports a security-mode reply.
func NewSecurityGate(op string, code byte) *Error {
	return &Error{
		Kind:    KindSecurityGate,
		Op:      op,
		Code:    uint32(code),
		Message: protocol.DescribeDiagStatus([]byte{code}),
	}
}

// NewTransportEmpty reports a missing reply.
func NewTransportEmpty(op string) *Error {
	return &Error{Kind: KindTransportEmpty, Op: op, Message: "no response from device", Err: protocol.ErrEmptyResponse}
}

// NewDomainError reports a failing NV status or EFS errno.
func NewDomainError(op string, code uint32, message string) *Error {
	return &Error{Kind: KindDomainError, Op: op, Code: code, Message: message}
}

// NewVerificationFailure reports a write whose read-back differs.
func NewVerificationFailure(op string, wrote, readBack []byte) *Error {
	return &Error{
		Kind:    KindVerificationFailure,
		Op:      op,
		Message: fmt.Sprintf("wrote %X, read back %X", wrote, readBack),
	}
}

// NewExhaustedMethod reports that no EFS method answered the HELLO request.
func NewExhaustedMethod(op string) *Error {
	return &Error{Kind: KindExhaustedMethod, Op: op, Message: "no EFS method available"}
}

// Wrap classifies err from a failed exchange. Link errors and decoder
// errors are kept as the cause of a ProtocolMismatch unless they already
// carry a kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, transport.ErrClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, protocol.ErrEmptyResponse) {
		return NewTransportEmpty(op)
	}
	var mm *protocol.MismatchError
	if errors.As(err, &mm) {
		return NewProtocolMismatch(op, []byte{mm.Got})
	}
	var rej *protocol.RejectedError
	if errors.As(err, &rej) {
		if rej.Opcode == protocol.CmdBadSecMode {
			return NewSecurityGate(op, byte(rej.Opcode))
		}
		return &Error{Kind: KindProtocolMismatch, Op: op, Code: uint32(rej.Opcode), Message: rej.Error(), Err: err}
	}
	return &Error{Kind: KindProtocolMismatch, Op: op, Message: "malformed response", Err: err}
}

// KindOf returns the kind of err and whether it is an engine error.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

func isKind(err error, k ErrorKind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// IsProtocolMismatch checks if err is a protocol mismatch
func IsProtocolMismatch(err error) bool { return isKind(err, KindProtocolMismatch) }

// IsSecurityGate checks if err asks for SP/SPC
func IsSecurityGate(err error) bool { return isKind(err, KindSecurityGate) }

// IsTransportEmpty checks if err is a missing reply
func IsTransportEmpty(err error) bool { return isKind(err, KindTransportEmpty) }

// IsDomainError checks if err is a failing NV status or EFS errno
func IsDomainError(err error) bool { return isKind(err, KindDomainError) }

// IsVerificationFailure checks if err is a verify-after-write mismatch
func IsVerificationFailure(err error) bool { return isKind(err, KindVerificationFailure) }

// IsExhaustedMethod checks if err means EFS is unavailable
func IsExhaustedMethod(err error) bool { return isKind(err, KindExhaustedMethod) }

// TroubleshootingHint returns operator advice for err.
func TroubleshootingHint(err error) string {
	var de *Error
	if !errors.As(err, &de) {
		return "An unexpected error occurred. Re-run with QCDIAG_LOG_LEVEL=debug for a frame trace."
	}

	switch de.Kind {
	case KindTransportEmpty:
		return strings.Join([]string{
			"The device did not answer.",
			"Troubleshooting:",
			"  • Check that the device is in diag mode (not EDL or normal MTP mode)",
			"  • Close ModemManager, QPST or any other tool holding the diag port",
			"  • Try a longer response timeout (--timeout)",
			"  • Replug the device and retry",
		}, "\n")

	case KindSecurityGate:
		return strings.Join([]string{
			"The device requires security privileges for this command.",
			"Troubleshooting:",
			"  • Send the security password first: qcdiag sp",
			"  • Send the service programming code: qcdiag spc",
			"  • Some firmwares refuse privileged commands on production builds",
		}, "\n")

	case KindProtocolMismatch:
		return strings.Join([]string{
			fmt.Sprintf("The device rejected the command (0x%02X).", de.Code),
			"Troubleshooting:",
			"  • The command may be unsupported by this firmware",
			"  • For NV access, check that the item id exists on this target",
			"  • Send SP/SPC if the item is protected",
		}, "\n")

	case KindDomainError:
		return "The device reported an error for this item or path. Check the id, path and permissions."

	case KindVerificationFailure:
		return strings.Join([]string{
			"The device accepted the write but reads back different data.",
			"Troubleshooting:",
			"  • The item may be write-protected or OTP",
			"  • Reboot the device and read the item again",
		}, "\n")

	case KindExhaustedMethod:
		return strings.Join([]string{
			"Neither EFS2 command set answered.",
			"Troubleshooting:",
			"  • The firmware may not expose EFS over diag",
			"  • Send SP/SPC and retry",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a one-line message for err.
func ShortMessage(err error) string {
	var de *Error
	if !errors.As(err, &de) {
		return err.Error()
	}
	switch de.Kind {
	case KindTransportEmpty:
		return "Device not responding"
	case KindSecurityGate:
		return "Security privileges required - send SP/SPC first"
	case KindExhaustedMethod:
		return "No EFS method available"
	case KindVerificationFailure:
		return "Write verification failed"
	default:
		if de.Message != "" {
			return de.Message
		}
		return de.Kind.String()
	}
}
