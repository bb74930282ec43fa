package diagtest

import (
	"encoding/binary"
	"sync"

	"github.com/muurk/qcdiag/internal/protocol"
)

type subKey struct {
	item, index uint16
}

// NVDevice stores NV writes and answers reads, flat and subsystem. Items
// never written read back with status Inactive.
type NVDevice struct {
	*Device

	mu    sync.Mutex
	flat  map[uint16][]byte
	sub   map[subKey][]byte
	state map[uint16]protocol.NvStatus

	// Corrupt, when set, alters payloads returned by reads.
	Corrupt func(item uint16, data []byte) []byte
}

// NewNVDevice returns an empty NV echo device.
func NewNVDevice() *NVDevice {
	nv := &NVDevice{
		flat:  make(map[uint16][]byte),
		sub:   make(map[subKey][]byte),
		state: make(map[uint16]protocol.NvStatus),
	}
	nv.Device = New(nv.handle)
	return nv
}

// Set stores a flat item as if written earlier.
func (n *NVDevice) Set(item uint16, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flat[item] = pad(data)
}

// SetStatus forces the status word returned for item.
func (n *NVDevice) SetStatus(item uint16, s protocol.NvStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state[item] = s
}

// Item returns the stored payload of a flat item.
func (n *NVDevice) Item(item uint16) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.flat[item]
	return d, ok
}

// SubItem returns the stored payload of a sub item.
func (n *NVDevice) SubItem(item, index uint16) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.sub[subKey{item, index}]
	return d, ok
}

func (n *NVDevice) handle(req []byte) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case len(req) >= 133 && req[0] == byte(protocol.CmdNVRead):
		item := binary.LittleEndian.Uint16(req[1:])
		data, ok := n.flat[item]
		return NVReply(req[0], item, n.read(item, data), n.status(item, ok))

	case len(req) >= 133 && req[0] == byte(protocol.CmdNVWrite):
		item := binary.LittleEndian.Uint16(req[1:])
		n.flat[item] = append([]byte(nil), req[3:3+protocol.NVPayloadSize]...)
		return NVReply(req[0], item, n.flat[item], protocol.NvOK)

	case len(req) >= 138 && req[0] == byte(protocol.CmdSubsystem) && req[1] == byte(protocol.SubsysNV):
		item := binary.LittleEndian.Uint16(req[4:])
		index := binary.LittleEndian.Uint16(req[6:])
		key := subKey{item, index}
		if req[2] == protocol.NVSubWrite {
			n.sub[key] = append([]byte(nil), req[8:8+protocol.NVPayloadSize]...)
			return NVSubReply(req[2], item, index, n.sub[key], protocol.NvOK)
		}
		data, ok := n.sub[key]
		return NVSubReply(req[2], item, index, n.read(item, data), n.status(item, ok))
	}
	return []byte{byte(protocol.CmdBadCommand)}
}

func (n *NVDevice) read(item uint16, data []byte) []byte {
	if n.Corrupt != nil {
		return n.Corrupt(item, data)
	}
	return data
}

func (n *NVDevice) status(item uint16, present bool) protocol.NvStatus {
	if s, ok := n.state[item]; ok {
		return s
	}
	if !present {
		return protocol.NvInactive
	}
	return protocol.NvOK
}

func pad(data []byte) []byte {
	out := make([]byte, protocol.NVPayloadSize)
	copy(out, data)
	return out
}

// NVReply builds a flat NV response.
func NVReply(op byte, item uint16, data []byte, status protocol.NvStatus) []byte {
	resp := []byte{op}
	resp = binary.LittleEndian.AppendUint16(resp, item)
	resp = append(resp, pad(data)...)
	return binary.LittleEndian.AppendUint16(resp, uint16(status))
}

// NVSubReply builds a subsystem NV response.
func NVSubReply(cmd byte, item, index uint16, data []byte, status protocol.NvStatus) []byte {
	resp := []byte{byte(protocol.CmdSubsystem), byte(protocol.SubsysNV), cmd, 0x00}
	resp = binary.LittleEndian.AppendUint16(resp, item)
	resp = binary.LittleEndian.AppendUint16(resp, index)
	resp = append(resp, pad(data)...)
	return binary.LittleEndian.AppendUint16(resp, uint16(status))
}
