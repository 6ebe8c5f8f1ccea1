package isotp

import (
	"fmt"
	"time"

	"github.com/autodiag/vcistack/canbus"
)

// PCI frame type nibbles (ISO 15765-2).
const (
	pciSingleFrame      = 0x00
	pciFirstFrame       = 0x10
	pciConsecutiveFrame = 0x20
	pciFlowControl      = 0x30
)

// FlowStatus is the low nibble of a Flow Control PCI byte.
type FlowStatus uint8

const (
	FlowContinueToSend FlowStatus = 0x00
	FlowWait           FlowStatus = 0x01
	FlowOverflow       FlowStatus = 0x02
)

// SingleFrame carries a complete payload of up to 7 bytes.
type SingleFrame struct{ Data []byte }

// FirstFrame opens a multi-frame transfer; TotalSize is the 12-bit
// declared payload length, Data the first 6 payload bytes.
type FirstFrame struct {
	TotalSize int
	Data      []byte
}

// ConsecutiveFrame continues a transfer; SequenceNumber wraps 0..15.
type ConsecutiveFrame struct {
	SequenceNumber int
	Data           []byte
}

// FlowControlFrame paces the sender.
type FlowControlFrame struct {
	Status    FlowStatus
	BlockSize int
	STmin     time.Duration
}

// decodeSTmin maps the wire STmin byte to a separation time.
// 0x00-0x7F are milliseconds, 0xF1-0xF9 are 100-900 microseconds, and
// every reserved value is treated as zero rather than rejected, which
// keeps transfers moving against sloppy ECUs.
func decodeSTmin(b byte) time.Duration {
	switch {
	case b <= 0x7F:
		return time.Duration(b) * time.Millisecond
	case b >= 0xF1 && b <= 0xF9:
		return time.Duration(b-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

// parsePDU decodes the ISO-TP protocol control information of a CAN
// frame payload.
func parsePDU(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("isotp: empty CAN payload")
	}

	switch data[0] & 0xF0 {
	case pciSingleFrame:
		length := int(data[0] & 0x0F)
		if length == 0 || length > 7 {
			return nil, fmt.Errorf("isotp: single frame with invalid length %d", length)
		}
		if len(data)-1 < length {
			return nil, fmt.Errorf("isotp: single frame length %d exceeds payload %d", length, len(data)-1)
		}
		return &SingleFrame{Data: append([]byte(nil), data[1:1+length]...)}, nil

	case pciFirstFrame:
		if len(data) < 2 {
			return nil, fmt.Errorf("isotp: first frame must be at least 2 bytes")
		}
		total := (int(data[0]&0x0F) << 8) | int(data[1])
		if total <= 7 {
			return nil, fmt.Errorf("isotp: first frame declares length %d, single frame expected", total)
		}
		return &FirstFrame{TotalSize: total, Data: append([]byte(nil), data[2:]...)}, nil

	case pciConsecutiveFrame:
		return &ConsecutiveFrame{
			SequenceNumber: int(data[0] & 0x0F),
			Data:           append([]byte(nil), data[1:]...),
		}, nil

	case pciFlowControl:
		if len(data) < 3 {
			return nil, fmt.Errorf("isotp: flow control frame must be at least 3 bytes")
		}
		status := FlowStatus(data[0] & 0x0F)
		if status > FlowOverflow {
			return nil, fmt.Errorf("isotp: unknown flow status %d", status)
		}
		return &FlowControlFrame{
			Status:    status,
			BlockSize: int(data[1]),
			STmin:     decodeSTmin(data[2]),
		}, nil
	}

	return nil, fmt.Errorf("isotp: unknown PCI type 0x%02X", data[0]&0xF0)
}

// pad fills data up to 8 bytes with the padding byte. Padding every
// frame is a hardware-compatibility convention of this stack, not an
// ISO-TP requirement.
func pad(data []byte, padding byte) []byte {
	for len(data) < canbus.MaxDataLen {
		data = append(data, padding)
	}
	return data
}

func buildSingleFrame(payload []byte, padding byte) []byte {
	data := make([]byte, 0, canbus.MaxDataLen)
	data = append(data, pciSingleFrame|byte(len(payload)))
	data = append(data, payload...)
	return pad(data, padding)
}

func buildFirstFrame(totalSize int, chunk []byte, padding byte) []byte {
	data := make([]byte, 0, canbus.MaxDataLen)
	data = append(data, pciFirstFrame|byte((totalSize>>8)&0x0F), byte(totalSize&0xFF))
	data = append(data, chunk...)
	return pad(data, padding)
}

func buildConsecutiveFrame(seq int, chunk []byte, padding byte) []byte {
	data := make([]byte, 0, canbus.MaxDataLen)
	data = append(data, pciConsecutiveFrame|byte(seq&0x0F))
	data = append(data, chunk...)
	return pad(data, padding)
}

func buildFlowControl(status FlowStatus, blockSize int, stMin byte, padding byte) []byte {
	data := []byte{pciFlowControl | byte(status), byte(blockSize), stMin}
	return pad(data, padding)
}
