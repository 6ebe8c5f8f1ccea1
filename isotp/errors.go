package isotp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout covers a send or flow-control wait exceeding its bound.
	ErrTimeout = errors.New("isotp: timed out")
	// ErrFlowControlOverflow means the peer rejected the announced length.
	ErrFlowControlOverflow = errors.New("isotp: remote node reported overflow")
	// ErrReassemblyTimeout means a multi-frame receive stalled before the
	// declared length arrived; the partial buffer is discarded.
	ErrReassemblyTimeout = errors.New("isotp: consecutive frame not received in time")
	// ErrWrongSequenceNumber means a consecutive frame arrived out of
	// order, which usually indicates a lost frame.
	ErrWrongSequenceNumber = errors.New("isotp: wrong sequence number in consecutive frame")
	// ErrFrameTooLong means a first frame declared more than MaxFrameSize.
	ErrFrameTooLong = errors.New("isotp: first frame length exceeds maximum frame size")
	// ErrMaxWaitFrames means the peer sent more FC Wait frames than allowed.
	ErrMaxWaitFrames = errors.New("isotp: maximum wait flow control frames reached")
)

// TransportFault wraps an error propagated from the frame transport so
// callers can still reach the transport taxonomy through errors.Is.
type TransportFault struct {
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("isotp: transport fault: %v", e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }
