// Package canbus defines the CAN frame value type shared by every
// transport backend and the wire codec used when a frame travels with its
// arbitration ID prefixed to the payload (PassThru message convention).
package canbus

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// MaxDataLen is the classic CAN payload limit.
const MaxDataLen = 8

// Frame is a single CAN frame. Treat it as an immutable value once
// constructed: transports hand out fresh frames, the ISO-TP layer only
// reads them.
type Frame struct {
	// ID is the arbitration ID, 11-bit unless Extended is set.
	ID   uint32
	Data []byte

	Extended bool
	Remote   bool

	// RxStatus carries the driver's receive status word, zero for frames
	// built locally.
	RxStatus uint32
	// Timestamp is the receive time; zero for frames built locally.
	Timestamp time.Time
}

// New builds a frame for transmission. Data longer than 8 bytes is a
// programming error at this layer.
func New(id uint32, data []byte) (Frame, error) {
	if len(data) > MaxDataLen {
		return Frame{}, fmt.Errorf("canbus: frame payload %d exceeds %d bytes", len(data), MaxDataLen)
	}
	f := Frame{
		ID:       id & 0x1FFFFFFF,
		Data:     append([]byte(nil), data...),
		Extended: id > 0x7FF,
	}
	return f, nil
}

// Marshal encodes the frame in the 4-byte big-endian ID prefix convention:
// [ID3 ID2 ID1 ID0][0..8 payload bytes].
func (f Frame) Marshal() []byte {
	buf := make([]byte, 4+len(f.Data))
	binary.BigEndian.PutUint32(buf[:4], f.ID)
	copy(buf[4:], f.Data)
	return buf
}

// Unmarshal decodes a frame from the 4-byte ID prefix convention.
func Unmarshal(raw []byte) (Frame, error) {
	if len(raw) < 4 {
		return Frame{}, fmt.Errorf("canbus: message of %d bytes is missing the 4-byte ID prefix", len(raw))
	}
	if len(raw)-4 > MaxDataLen {
		return Frame{}, fmt.Errorf("canbus: message payload %d exceeds %d bytes", len(raw)-4, MaxDataLen)
	}
	id := binary.BigEndian.Uint32(raw[:4])
	return Frame{
		ID:       id & 0x1FFFFFFF,
		Data:     append([]byte(nil), raw[4:]...),
		Extended: id&0x1FFFFFFF > 0x7FF,
	}, nil
}

func (f Frame) String() string {
	var idStr string
	if f.Extended {
		idStr = fmt.Sprintf("%08x", f.ID)
	} else {
		idStr = fmt.Sprintf("%03x", f.ID)
	}
	var flags []string
	if f.Extended {
		flags = append(flags, "ext")
	}
	if f.Remote {
		flags = append(flags, "rtr")
	}
	var flagStr string
	if len(flags) > 0 {
		flagStr = fmt.Sprintf(" (%s)", strings.Join(flags, ","))
	}
	return fmt.Sprintf("<CanFrame %s [%d]%s \"%s\">", idStr, len(f.Data), flagStr, hex.EncodeToString(f.Data))
}
