// Package j2534 binds a vendor PassThru DLL to the FrameTransport
// contract. Only Windows hosts can load the vendor libraries; elsewhere
// New reports ErrDriverLoadFailed.
package j2534

import (
	"fmt"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

// PassThruMsg mirrors the PASSTHRU_MSG structure of the J2534-1 API.
// Data carries a 4-byte big-endian arbitration ID followed by the
// payload, which is the same layout canbus.Frame marshals to.
type PassThruMsg struct {
	ProtocolID     uint32
	RxStatus       uint32
	TxFlags        uint32
	Timestamp      uint32
	DataSize       uint32
	ExtraDataIndex uint32
	Data           [4128]byte
}

// TxFlags bits.
const (
	FlagISO15765FramePad = 0x00000040
	FlagCAN29BitID       = 0x00000100
)

// Filter types for PassThruStartMsgFilter.
const (
	PassFilter        = 1
	BlockFilter       = 2
	FlowControlFilter = 3
)

// toMsg packs a frame into a PassThruMsg under the given protocol.
func toMsg(proto transport.Protocol, f canbus.Frame) *PassThruMsg {
	raw := f.Marshal()
	msg := &PassThruMsg{
		ProtocolID: uint32(proto),
		DataSize:   uint32(len(raw)),
	}
	if f.Extended {
		msg.TxFlags |= FlagCAN29BitID
	}
	copy(msg.Data[:], raw)
	return msg
}

// fromMsg unpacks a received PassThruMsg into a frame.
func fromMsg(msg *PassThruMsg) (*canbus.Frame, error) {
	if msg.DataSize > uint32(len(msg.Data)) {
		return nil, fmt.Errorf("j2534: bogus DataSize %d", msg.DataSize)
	}
	f, err := canbus.Unmarshal(msg.Data[:msg.DataSize])
	if err != nil {
		return nil, err
	}
	f.RxStatus = msg.RxStatus
	return &f, nil
}
