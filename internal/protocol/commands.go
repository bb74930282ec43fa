package protocol

import "fmt"

// DiagCommand is a top level diag opcode (byte 0 of a request or response).
type DiagCommand byte

// Diag opcodes used by qcdiag. Values from the DIAG_*_F command set.
const (
	CmdVersionInfo    DiagCommand = 0x00 // DIAG_VERNO_F
	CmdBadCommand     DiagCommand = 0x13 // DIAG_BAD_CMD_F
	CmdBadParameter   DiagCommand = 0x14 // DIAG_BAD_PARM_F
	CmdBadLength      DiagCommand = 0x15 // DIAG_BAD_LEN_F
	CmdSecurityMode   DiagCommand = 0x17
	CmdBadMode        DiagCommand = 0x18 // DIAG_BAD_MODE_F
	CmdLegacyPassword DiagCommand = 0x25
	CmdNVRead         DiagCommand = 0x26 // DIAG_NV_READ_F
	CmdNVWrite        DiagCommand = 0x27 // DIAG_NV_WRITE_F
	CmdDownload       DiagCommand = 0x3A // DIAG_DLOAD_F
	CmdSPC            DiagCommand = 0x41 // DIAG_SPC_F
	CmdBadSPCMode     DiagCommand = 0x42 // DIAG_BAD_SPC_MODE_F
	CmdPassword       DiagCommand = 0x46 // DIAG_PASSWORD_F
	CmdBadSecMode     DiagCommand = 0x47 // DIAG_BAD_SEC_MODE_F
	CmdSubsystem      DiagCommand = 0x4B // DIAG_SUBSYS_CMD_F
)

var diagCommandNames = map[DiagCommand]string{
	CmdVersionInfo:    "VERNO",
	CmdBadCommand:     "BAD_CMD",
	CmdBadParameter:   "BAD_PARM",
	CmdBadLength:      "BAD_LEN",
	CmdSecurityMode:   "SEC_MODE",
	CmdBadMode:        "BAD_MODE",
	CmdLegacyPassword: "PASSWORD_LEGACY",
	CmdNVRead:         "NV_READ",
	CmdNVWrite:        "NV_WRITE",
	CmdDownload:       "DLOAD",
	CmdSPC:            "SPC",
	CmdBadSPCMode:     "BAD_SPC_MODE",
	CmdPassword:       "PASSWORD",
	CmdBadSecMode:     "BAD_SEC_MODE",
	CmdSubsystem:      "SUBSYS_CMD",
}

func (c DiagCommand) String() string {
	if name, ok := diagCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("DIAG_0x%02X", byte(c))
}

// Subsystem identifies the second byte of a 0x4B subsystem request.
type Subsystem byte

const (
	SubsysSystem Subsystem = 0x25 // crash trigger lives here
	SubsysNV     Subsystem = 0x30
	SubsysBoot   Subsystem = 0x65 // sahara switch
)

// NV subsystem commands (third byte of a SubsysNV request).
const (
	NVSubRead  byte = 0x01
	NVSubWrite byte = 0x02
)

// EfsMethod is the subsystem byte used for EFS2 requests. Devices answer on
// one of two values; which one is detected once per session.
type EfsMethod byte

const (
	EfsMethodAlternate EfsMethod = 0x3E
	EfsMethodStandard  EfsMethod = 0x13
)

func (m EfsMethod) String() string {
	switch m {
	case EfsMethodAlternate:
		return "alternate (0x3E)"
	case EfsMethodStandard:
		return "standard (0x13)"
	default:
		return fmt.Sprintf("unknown (0x%02X)", byte(m))
	}
}

// EfsCommand is an EFS2 subsystem command number.
type EfsCommand byte

const (
	EfsHello          EfsCommand = 0
	EfsQuery          EfsCommand = 1
	EfsOpen           EfsCommand = 2
	EfsClose          EfsCommand = 3
	EfsRead           EfsCommand = 4
	EfsWrite          EfsCommand = 5
	EfsSymlink        EfsCommand = 6
	EfsReadlink       EfsCommand = 7
	EfsUnlink         EfsCommand = 8
	EfsMkdir          EfsCommand = 9
	EfsRmdir          EfsCommand = 10
	EfsOpendir        EfsCommand = 11
	EfsReaddir        EfsCommand = 12
	EfsClosedir       EfsCommand = 13
	EfsRename         EfsCommand = 14
	EfsStat           EfsCommand = 15
	EfsLstat          EfsCommand = 16
	EfsFstat          EfsCommand = 17
	EfsChmod          EfsCommand = 18
	EfsStatfs         EfsCommand = 19
	EfsAccess         EfsCommand = 20
	EfsNandDevInfo    EfsCommand = 21
	EfsFactImageStart EfsCommand = 22
	EfsFactImageRead  EfsCommand = 23
	EfsFactImageEnd   EfsCommand = 24
	EfsPrepFactImage  EfsCommand = 25
	EfsPutDeprecated  EfsCommand = 26
	EfsGetDeprecated  EfsCommand = 27
	EfsError          EfsCommand = 28
	EfsExtendedInfo   EfsCommand = 29
	EfsChown          EfsCommand = 30
	EfsBenchmarkStart EfsCommand = 31
	EfsBenchmarkGet   EfsCommand = 32
	EfsBenchmarkInit  EfsCommand = 33
	EfsSetReservation EfsCommand = 34
	EfsSetQuota       EfsCommand = 35
	EfsGetGroupInfo   EfsCommand = 36
	EfsDeltree        EfsCommand = 37
	EfsPut            EfsCommand = 38
	EfsGet            EfsCommand = 39
	EfsTruncate       EfsCommand = 40
	EfsFtruncate      EfsCommand = 41
	EfsStatvfsV2      EfsCommand = 42
)

var efsCommandNames = [...]string{
	"HELLO", "QUERY", "OPEN", "CLOSE", "READ", "WRITE", "SYMLINK", "READLINK",
	"UNLINK", "MKDIR", "RMDIR", "OPENDIR", "READDIR", "CLOSEDIR", "RENAME",
	"STAT", "LSTAT", "FSTAT", "CHMOD", "STATFS", "ACCESS", "NAND_DEV_INFO",
	"FACT_IMAGE_START", "FACT_IMAGE_READ", "FACT_IMAGE_END", "PREP_FACT_IMAGE",
	"PUT_DEPRECATED", "GET_DEPRECATED", "ERROR", "EXTENDED_INFO", "CHOWN",
	"BENCHMARK_START_TEST", "BENCHMARK_GET_RESULTS", "BENCHMARK_INIT",
	"SET_RESERVATION", "SET_QUOTA", "GET_GROUP_INFO", "DELTREE", "PUT", "GET",
	"TRUNCATE", "FTRUNCATE", "STATVFS_V2",
}

func (c EfsCommand) String() string {
	if int(c) < len(efsCommandNames) {
		return "EFS2_DIAG_" + efsCommandNames[c]
	}
	return fmt.Sprintf("EFS2_DIAG_0x%02X", byte(c))
}

// EFS2 open flags and limits.
const (
	ORdOnly  uint32 = 0
	OWrOnly  uint32 = 1
	ORdWr    uint32 = 2
	OAccMode uint32 = ORdOnly | OWrOnly | ORdWr
	OCreat   uint32 = 0o100
	OTrunc   uint32 = 0o1000

	// MaxEfsTransfer caps the data carried by a single EFS read or write.
	MaxEfsTransfer = 1024
)
