package diagtest

import (
	"encoding/binary"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/muurk/qcdiag/internal/protocol"
)

// EfsReply builds an EFS2 response header for method and cmd followed by body.
func EfsReply(m protocol.EfsMethod, cmd protocol.EfsCommand, body ...[]byte) []byte {
	resp := []byte{byte(protocol.CmdSubsystem), byte(m), byte(cmd), 0x00}
	for _, b := range body {
		resp = append(resp, b...)
	}
	return resp
}

// ReaddirEntry builds a READDIR response carrying name, or the end sentinel
// when name is empty.
func ReaddirEntry(m protocol.EfsMethod, dirp uint32, seq int32, mode, size uint32, name string) []byte {
	entryType := uint32(protocol.EntryFile)
	if name == "" {
		entryType = uint32(protocol.EntryEnd)
	}
	resp := EfsReply(m, protocol.EfsReaddir, LE32(dirp, uint32(seq), 0, entryType, mode, size, 1, 2, 3))
	if name != "" {
		field := []byte(name)
		for len(field) < 50 {
			field = append(field, ' ')
		}
		resp = append(resp, field...)
		resp = append(resp, 0x00)
	}
	return resp
}

type efsFile struct {
	data []byte
	mode uint32
}

// EFSDevice is an in-memory EFS2 file system that answers on one method.
type EFSDevice struct {
	*Device

	mu     sync.Mutex
	method protocol.EfsMethod
	files  map[string]*efsFile
	dirs   map[string]uint32
	fds    map[int32]string
	dirps  map[uint32][]string
	nextFd int32
}

// NewEFSDevice returns a device answering EFS requests on method only.
func NewEFSDevice(method protocol.EfsMethod) *EFSDevice {
	e := &EFSDevice{
		method: method,
		files:  make(map[string]*efsFile),
		dirs:   map[string]uint32{"/": 0o40755},
		fds:    make(map[int32]string),
		dirps:  make(map[uint32][]string),
		nextFd: 3,
	}
	e.Device = New(e.handle)
	return e
}

// PutFile stores a regular file. Parent directories are created.
func (e *EFSDevice) PutFile(p string, data []byte, mode uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		e.dirs[dir] = 0o40755
	}
	e.files[p] = &efsFile{data: append([]byte(nil), data...), mode: mode}
}

// File returns the contents of p.
func (e *EFSDevice) File(p string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.files[p]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

// Mode returns the mode of a file or directory.
func (e *EFSDevice) Mode(p string) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.files[p]; ok {
		return f.mode, true
	}
	m, ok := e.dirs[p]
	return m, ok
}

// HasDir reports whether p is a directory.
func (e *EFSDevice) HasDir(p string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.dirs[p]
	return ok
}

// OpenFds returns the number of descriptors not yet closed.
func (e *EFSDevice) OpenFds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fds)
}

func cstr(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func (e *EFSDevice) handle(req []byte) []byte {
	if len(req) < 4 || req[0] != byte(protocol.CmdSubsystem) {
		return []byte{byte(protocol.CmdBadCommand)}
	}
	if req[1] != byte(e.method) {
		return []byte{byte(protocol.CmdBadCommand), req[0], req[1]}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.method
	cmd := protocol.EfsCommand(req[2])
	body := req[4:]
	errInvalidPath := uint32(protocol.EfsErrInvalidPath)

	switch cmd {
	case protocol.EfsHello:
		return EfsReply(m, cmd, make([]byte, 0x28))

	case protocol.EfsOpen:
		oflag, p := u32(body, 0), cstr(body[8:])
		f, ok := e.files[p]
		if !ok {
			if oflag&protocol.OCreat == 0 {
				return EfsReply(m, cmd, LE32(0xFFFFFFFF, errInvalidPath))
			}
			f = &efsFile{mode: 0o100000 | u32(body, 4)}
			e.files[p] = f
		}
		if oflag&protocol.OTrunc != 0 {
			f.data = nil
		}
		fd := e.nextFd
		e.nextFd++
		e.fds[fd] = p
		return EfsReply(m, cmd, LE32(uint32(fd), 0))

	case protocol.EfsClose:
		delete(e.fds, int32(u32(body, 0)))
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsRead:
		fd, n, off := int32(u32(body, 0)), u32(body, 4), u32(body, 8)
		p, ok := e.fds[fd]
		if !ok {
			return EfsReply(m, cmd, LE32(uint32(fd), off, 0, uint32(protocol.EfsErrInconsistentState)))
		}
		data := e.files[p].data
		if int(off) >= len(data) {
			data = nil
		} else {
			data = data[off:]
		}
		if uint32(len(data)) > n {
			data = data[:n]
		}
		return EfsReply(m, cmd, LE32(uint32(fd), off, uint32(len(data)), 0), data)

	case protocol.EfsWrite:
		fd, off, data := int32(u32(body, 0)), u32(body, 4), body[8:]
		p, ok := e.fds[fd]
		if !ok {
			return EfsReply(m, cmd, LE32(uint32(fd), off, 0, uint32(protocol.EfsErrInconsistentState)))
		}
		f := e.files[p]
		for uint32(len(f.data)) < off {
			f.data = append(f.data, 0)
		}
		f.data = append(f.data[:off], data...)
		return EfsReply(m, cmd, LE32(uint32(fd), off, uint32(len(data)), 0))

	case protocol.EfsFstat:
		p, ok := e.fds[int32(u32(body, 0))]
		if !ok {
			return EfsReply(m, cmd, LE32(uint32(protocol.EfsErrInconsistentState), 0, 0, 0, 0, 0, 0))
		}
		f := e.files[p]
		return EfsReply(m, cmd, LE32(0, f.mode, uint32(len(f.data)), 1, 10, 20, 30))

	case protocol.EfsStat, protocol.EfsLstat:
		p := cstr(body)
		var mode, size uint32
		if f, ok := e.files[p]; ok {
			mode, size = f.mode, uint32(len(f.data))
		} else if dm, ok := e.dirs[p]; ok {
			mode = dm
		} else {
			return EfsReply(m, cmd, LE32(errInvalidPath, 0, 0, 0, 0, 0, 0))
		}
		if cmd == protocol.EfsLstat {
			return EfsReply(m, cmd, LE32(0, mode, 10, 20, 30))
		}
		return EfsReply(m, cmd, LE32(0, mode, size, 1, 10, 20, 30))

	case protocol.EfsMkdir:
		p := cstr(body[2:])
		if _, ok := e.dirs[p]; ok {
			return EfsReply(m, cmd, LE32(errInvalidPath))
		}
		e.dirs[p] = 0o40000 | uint32(binary.LittleEndian.Uint16(body))
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsRmdir:
		p := cstr(body)
		if _, ok := e.dirs[p]; !ok {
			return EfsReply(m, cmd, LE32(errInvalidPath))
		}
		delete(e.dirs, p)
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsUnlink:
		p := cstr(body)
		if _, ok := e.files[p]; !ok {
			return EfsReply(m, cmd, LE32(errInvalidPath))
		}
		delete(e.files, p)
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsChmod:
		p := cstr(body[2:])
		mode := uint32(binary.LittleEndian.Uint16(body))
		if f, ok := e.files[p]; ok {
			f.mode = f.mode&^0o7777 | mode
			return EfsReply(m, cmd, LE32(0))
		}
		return EfsReply(m, cmd, LE32(errInvalidPath))

	case protocol.EfsChown:
		if _, ok := e.files[cstr(body[8:])]; !ok {
			return EfsReply(m, cmd, LE32(errInvalidPath))
		}
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsOpendir:
		p := cstr(body)
		if _, ok := e.dirs[p]; !ok {
			return EfsReply(m, cmd, LE32(0, uint32(protocol.EfsErrDirNotOpen)))
		}
		dirp := uint32(len(e.dirps) + 1)
		e.dirps[dirp] = e.children(p)
		return EfsReply(m, cmd, LE32(dirp, 0))

	case protocol.EfsReaddir:
		dirp, seq := u32(body, 0), int32(u32(body, 4))
		names := e.dirps[dirp]
		if seq < 1 || int(seq) > len(names) {
			return ReaddirEntry(m, dirp, seq, 0, 0, "")
		}
		name := names[seq-1]
		return ReaddirEntry(m, dirp, seq, 0o100644, 0, name)

	case protocol.EfsClosedir:
		delete(e.dirps, u32(body, 0))
		return EfsReply(m, cmd, LE32(0))

	case protocol.EfsGet:
		p := cstr(body[10:])
		f, ok := e.files[p]
		if !ok {
			return EfsReply(m, cmd, LE32(0, errInvalidPath), []byte{0, 0})
		}
		seq := body[8:10]
		return EfsReply(m, cmd, LE32(uint32(len(f.data)), 0), seq, f.data)
	}

	return []byte{byte(protocol.CmdBadCommand)}
}

// children lists the direct entries of dir, sorted.
func (e *EFSDevice) children(dir string) []string {
	var out []string
	prefix := strings.TrimSuffix(dir, "/") + "/"
	add := func(p string) {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") && p != prefix {
			out = append(out, p[len(prefix):])
		}
	}
	for p := range e.files {
		add(p)
	}
	for p := range e.dirs {
		add(p)
	}
	sort.Strings(out)
	return out
}
