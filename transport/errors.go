package transport

import (
	"errors"
	"fmt"
)

// Error kinds. Driver load failures (missing binary, bitness
// mismatch) are configuration problems and are never retried here.
var (
	ErrDriverLoadFailed    = errors.New("driver load failed")
	ErrDeviceBusy          = errors.New("device busy")
	ErrDeviceNotOpen       = errors.New("device not open")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrTimeout             = errors.New("operation timed out")
	ErrHardwareFault       = errors.New("hardware fault")
)

// Error wraps one of the sentinel kinds with the operation name and,
// where the backend has one, the native driver status code. Layers above
// match with errors.Is against the sentinels.
type Error struct {
	Op     string
	Kind   error
	Native int64
	Detail string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("transport: %s: %v", e.Op, e.Kind)
	if e.Native != 0 {
		msg += fmt.Sprintf(" (native status %d)", e.Native)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds a transport error for op with the given kind.
func NewError(op string, kind error, detail string) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail}
}
