package protocol

import "fmt"

// DiagStatus is the category of the leading byte of a diag response.
type DiagStatus int

const (
	StatusAccepted DiagStatus = iota
	StatusInvalidCommand
	StatusInvalidParameter
	StatusInvalidLength
	StatusSecurityRequired
	StatusModeNotAllowed
	StatusNVLocked
)

func (s DiagStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusInvalidCommand:
		return "invalid command"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusInvalidLength:
		return "invalid length"
	case StatusSecurityRequired:
		return "security mode required"
	case StatusModeNotAllowed:
		return "mode not allowed"
	case StatusNVLocked:
		return "nv locked"
	default:
		return fmt.Sprintf("DiagStatus(%d)", int(s))
	}
}

// ClassifyDiagStatus maps the leading response byte to its category.
// Anything that is not a known error frame is StatusAccepted.
func ClassifyDiagStatus(b byte) DiagStatus {
	switch DiagCommand(b) {
	case CmdBadCommand:
		return StatusInvalidCommand
	case CmdBadParameter:
		return StatusInvalidParameter
	case CmdBadLength:
		return StatusInvalidLength
	case CmdSecurityMode, CmdBadSecMode:
		return StatusSecurityRequired
	case CmdBadMode:
		return StatusModeNotAllowed
	case CmdBadSPCMode:
		return StatusNVLocked
	default:
		return StatusAccepted
	}
}

// DescribeDiagStatus returns the operator-facing text for a response's
// leading byte.
func DescribeDiagStatus(resp []byte) string {
	if len(resp) == 0 {
		return "No response"
	}
	switch DiagCommand(resp[0]) {
	case CmdBadCommand:
		return "Invalid Command Response"
	case CmdBadParameter:
		return "Invalid parameter Response"
	case CmdBadLength:
		return "Invalid packet length Response"
	case CmdSecurityMode:
		return "Send Security Mode"
	case CmdBadMode:
		return "Packet not allowed in this mode (online vs offline)"
	case CmdBadSPCMode:
		return "Invalid nv_read/write because SP is locked"
	case CmdBadSecMode:
		return "Security privileges required"
	default:
		return "Command accepted"
	}
}

// NvStatus is the 16-bit status word carried in NV responses.
type NvStatus uint16

const (
	NvOK           NvStatus = 0x0
	NvInternalDMSS NvStatus = 0x1
	NvBadCommand   NvStatus = 0x2
	NvMemoryFull   NvStatus = 0x3
	NvFailed       NvStatus = 0x4
	NvInactive     NvStatus = 0x5
	NvBadParameter NvStatus = 0x6
	NvReadOnly     NvStatus = 0x7
	NvBadTarget    NvStatus = 0x8
	NvNoMemory     NvStatus = 0x9
	NvInternal     NvStatus = 0xA
)

var nvStatusLabels = [...]string{
	"OK",
	"Internal DMSS use",
	"Unrecognized command",
	"NV memory full",
	"Command failed",
	"Inactive Item",
	"Bad Parameter",
	"Item was read-only",
	"Item not defined for this target",
	"No more free memory",
	"Internal use",
}

// String returns the status label, or "" for codes outside 0..10.
func (s NvStatus) String() string {
	if int(s) < len(nvStatusLabels) {
		return nvStatusLabels[s]
	}
	return ""
}

// OK reports whether the item was read or written successfully.
func (s NvStatus) OK() bool { return s == NvOK }

// EfsErrno is the 32-bit error word in EFS2 responses.
type EfsErrno uint32

const (
	EfsErrInconsistentState EfsErrno = 0x40000001
	EfsErrInvalidSeqNo      EfsErrno = 0x40000002
	EfsErrDirNotOpen        EfsErrno = 0x40000003
	EfsErrDirEntNotFound    EfsErrno = 0x40000004
	EfsErrInvalidPath       EfsErrno = 0x40000005
	EfsErrPathTooLong       EfsErrno = 0x40000006
	EfsErrTooManyOpenDirs   EfsErrno = 0x40000007
	EfsErrInvalidDirEntry   EfsErrno = 0x40000008
	EfsErrTooManyOpenFiles  EfsErrno = 0x40000009
	EfsErrUnknownFiletype   EfsErrno = 0x4000000A
	EfsErrNotNandFlash      EfsErrno = 0x4000000B
	EfsErrUnavailableInfo   EfsErrno = 0x4000000C
)

var efsErrnoLabels = map[EfsErrno]string{
	EfsErrInconsistentState: "Inconsistent state",
	EfsErrInvalidSeqNo:      "Invalid seq no",
	EfsErrDirNotOpen:        "Directory not open",
	EfsErrDirEntNotFound:    "Directory entry not found",
	EfsErrInvalidPath:       "Invalid path",
	EfsErrPathTooLong:       "Path too long",
	EfsErrTooManyOpenDirs:   "Too many open directories",
	EfsErrInvalidDirEntry:   "Invalid directory entry",
	EfsErrTooManyOpenFiles:  "Too many open files",
	EfsErrUnknownFiletype:   "Unknown filetype",
	EfsErrNotNandFlash:      "Not nand flash",
	EfsErrUnavailableInfo:   "Unavailable info",
}

// Failed reports whether the code is one of the known EFS2 error codes.
// Codes outside the table are not an error signal.
func (e EfsErrno) Failed() bool {
	_, ok := efsErrnoLabels[e]
	return ok
}

func (e EfsErrno) String() string {
	if label, ok := efsErrnoLabels[e]; ok {
		return label
	}
	return fmt.Sprintf("errno 0x%08X", uint32(e))
}

// EfsErrnoSentinel folds an EFS2 code into the 0 (success) / -1 (failure)
// convention callers of the bridge expect.
func EfsErrnoSentinel(code uint32) int {
	if EfsErrno(code).Failed() {
		return -1
	}
	return 0
}
