// Package transport defines the frame-level contract every physical or
// virtual VCI backend implements. The contract is deliberately strict
// about time: every call that can block takes an explicit timeout, so no
// caller ever needs a watchdog goroutine to recover from a hung driver.
package transport

import (
	"time"

	"github.com/autodiag/vcistack/canbus"
)

// Protocol identifies the bus protocol a channel is bound to. Values
// match the J2534 protocol ids so they can be passed straight to a
// PassThru driver.
type Protocol uint32

const (
	ProtocolJ1850VPW Protocol = 1
	ProtocolJ1850PWM Protocol = 2
	ProtocolISO9141  Protocol = 3
	ProtocolISO14230 Protocol = 4
	ProtocolCAN      Protocol = 5
	ProtocolISO15765 Protocol = 6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolJ1850VPW:
		return "J1850_VPW"
	case ProtocolJ1850PWM:
		return "J1850_PWM"
	case ProtocolISO9141:
		return "ISO9141"
	case ProtocolISO14230:
		return "ISO14230"
	case ProtocolCAN:
		return "CAN"
	case ProtocolISO15765:
		return "ISO15765"
	default:
		return "UNKNOWN"
	}
}

// ChannelID names one protocol-bound logical connection on an open
// device. A channel's protocol is fixed for its lifetime; reconnecting
// means a new channel.
type ChannelID uint32

// FrameTransport is the uniform capability set over whatever driver is
// loaded. Implementations must be safe for use from multiple goroutines;
// each call is individually atomic but two calls may interleave with
// traffic on other channels.
//
// ReadFrame returns (nil, nil) when no frame arrived within timeout -
// that is the normal "no message yet" signal, not an error. Disconnect
// and Close are idempotent.
type FrameTransport interface {
	Open() error
	Connect(proto Protocol, baud uint32, flags uint32) (ChannelID, error)
	SendFrame(ch ChannelID, f canbus.Frame, timeout time.Duration) error
	ReadFrame(ch ChannelID, timeout time.Duration) (*canbus.Frame, error)
	Disconnect(ch ChannelID) error
	Close() error
}

// FrameIO is the slice of FrameTransport the ISO-TP layer borrows: a
// capability reference to one channel's send/read pair, never ownership
// of the transport itself.
type FrameIO interface {
	SendFrame(ch ChannelID, f canbus.Frame, timeout time.Duration) error
	ReadFrame(ch ChannelID, timeout time.Duration) (*canbus.Frame, error)
}
