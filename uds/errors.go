package uds

import (
	"errors"
	"fmt"
)

// ErrNoResponse means the ECU did not answer within the request timeout.
// It is distinct from a negative response: a retry may well succeed.
var ErrNoResponse = errors.New("uds: no response from ECU")

// NegativeResponseError is a structured 7F <service> <NRC> response.
type NegativeResponseError struct {
	Service byte
	NRC     byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("uds: negative response: SID=0x%02X NRC=0x%02X (%s)",
		e.Service, e.NRC, NRCDescription(e.NRC))
}

// Retryable reports whether re-sending the same request is worthwhile.
func (e *NegativeResponseError) Retryable() bool {
	switch e.NRC {
	case NRCBusyRepeatRequest, NRCResponsePending:
		return true
	default:
		return false
	}
}

// SequenceError marks a service call that violates the engine's own
// state machine, for example sending a key with no seed issued.
type SequenceError struct {
	Detail string
}

func (e *SequenceError) Error() string {
	return "uds: " + e.Detail
}
