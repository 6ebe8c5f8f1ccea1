package j2534

import (
	"github.com/autodiag/vcistack/transport"
)

// J2534-1 return codes.
const (
	statusNoError            = 0x00
	errNotSupported          = 0x01
	errInvalidChannelID      = 0x02
	errInvalidProtocolID     = 0x03
	errNullParameter         = 0x04
	errInvalidFlags          = 0x06
	errFailed                = 0x07
	errDeviceNotConnected    = 0x08
	errTimeout               = 0x09
	errInvalidMsg            = 0x0A
	errExceededLimit         = 0x0C
	errDeviceInUse           = 0x0E
	errBufferEmpty           = 0x10
	errBufferFull            = 0x11
	errBufferOverflow        = 0x12
	errChannelInUse          = 0x14
	errMsgProtocolID         = 0x15
	errInvalidFilterID       = 0x16
	errNoFlowControl         = 0x17
	errInvalidBaudrate       = 0x19
	errInvalidDeviceID       = 0x1A
)

var statusNames = map[uintptr]string{
	errNotSupported:       "ERR_NOT_SUPPORTED",
	errInvalidChannelID:   "ERR_INVALID_CHANNEL_ID",
	errInvalidProtocolID:  "ERR_INVALID_PROTOCOL_ID",
	errNullParameter:      "ERR_NULL_PARAMETER",
	errInvalidFlags:       "ERR_INVALID_FLAGS",
	errFailed:             "ERR_FAILED",
	errDeviceNotConnected: "ERR_DEVICE_NOT_CONNECTED",
	errTimeout:            "ERR_TIMEOUT",
	errInvalidMsg:         "ERR_INVALID_MSG",
	errExceededLimit:      "ERR_EXCEEDED_LIMIT",
	errDeviceInUse:        "ERR_DEVICE_IN_USE",
	errBufferEmpty:        "ERR_BUFFER_EMPTY",
	errBufferFull:         "ERR_BUFFER_FULL",
	errBufferOverflow:     "ERR_BUFFER_OVERFLOW",
	errChannelInUse:       "ERR_CHANNEL_IN_USE",
	errMsgProtocolID:      "ERR_MSG_PROTOCOL_ID",
	errInvalidFilterID:    "ERR_INVALID_FILTER_ID",
	errNoFlowControl:      "ERR_NO_FLOW_CONTROL",
	errInvalidBaudrate:    "ERR_INVALID_BAUDRATE",
	errInvalidDeviceID:    "ERR_INVALID_DEVICE_ID",
}

// statusError maps a nonzero PassThru return code to a transport error.
func statusError(op string, code uintptr) error {
	name, ok := statusNames[code]
	if !ok {
		name = "unknown status"
	}
	e := &transport.Error{Op: op, Native: int64(code), Detail: name}
	switch code {
	case errDeviceInUse, errChannelInUse:
		e.Kind = transport.ErrDeviceBusy
	case errInvalidChannelID:
		e.Kind = transport.ErrInvalidChannel
	case errInvalidProtocolID, errNotSupported:
		e.Kind = transport.ErrUnsupportedProtocol
	case errDeviceNotConnected, errInvalidDeviceID:
		e.Kind = transport.ErrDeviceNotOpen
	case errTimeout:
		e.Kind = transport.ErrTimeout
	default:
		e.Kind = transport.ErrHardwareFault
	}
	return e
}
