// Package isotp implements the ISO 15765-2 transport layer used for
// vehicle diagnostics: segmentation of arbitrary payloads into CAN
// frames, reassembly of received frame sequences, and the Flow Control
// handshake that paces multi-frame transfers.
//
// The state machine is deliberately synchronous. Every blocking step
// (frame send, frame read, flow-control wait) is bounded by an explicit
// deadline, and a Session never spawns goroutines. One Session drives
// one logical transfer at a time; concurrent transfers belong on
// separate channels with separate Sessions.
package isotp

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

var logger = log.New(os.Stdout, "[ISO-TP] ", log.LstdFlags|log.Lshortfile)

// Session is one (txID, rxID) ISO-TP endpoint bound to a channel of a
// frame transport. It borrows only the SendFrame/ReadFrame capability;
// the transport's lifetime is owned elsewhere.
type Session struct {
	io  transport.FrameIO
	ch  transport.ChannelID
	cfg Config

	txSeq int
}

// NewSession validates cfg and binds a session to one channel.
func NewSession(io transport.FrameIO, ch transport.ChannelID, cfg Config) (*Session, error) {
	if io == nil {
		return nil, fmt.Errorf("isotp: frame transport must be provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{io: io, ch: ch, cfg: cfg}, nil
}

// forMe filters received frames: only the low 11 bits of the
// arbitration ID are compared against the session rx ID. Frames for
// other IDs are ignored, never buffered.
func (s *Session) forMe(f *canbus.Frame) bool {
	return f.ID&0x7FF == s.cfg.RxID&0x7FF
}

func (s *Session) sendRaw(data []byte, deadline time.Time) error {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return ErrTimeout
	}
	f, err := canbus.New(s.cfg.TxID, data)
	if err != nil {
		return err
	}
	if err := s.io.SendFrame(s.ch, f, remaining); err != nil {
		return &TransportFault{Err: err}
	}
	return nil
}

// readFor reads frames until one matching the session arrives or timeout
// elapses. Returns (nil, nil) on timeout.
func (s *Session) readFor(timeout time.Duration) (*canbus.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		f, err := s.io.ReadFrame(s.ch, remaining)
		if err != nil {
			return nil, &TransportFault{Err: err}
		}
		if f == nil {
			return nil, nil
		}
		if s.forMe(f) {
			return f, nil
		}
	}
}

// Send transmits payload as a single frame or as a segmented transfer,
// honoring the peer's Flow Control pacing. The whole operation is
// bounded by timeout.
func (s *Session) Send(payload []byte, timeout time.Duration) error {
	if len(payload) == 0 {
		return fmt.Errorf("isotp: empty payload")
	}
	if len(payload) > s.cfg.MaxFrameSize {
		return fmt.Errorf("isotp: payload of %d bytes exceeds max frame size %d", len(payload), s.cfg.MaxFrameSize)
	}

	dl := time.Now().Add(timeout)

	if len(payload) <= 7 {
		return s.sendRaw(buildSingleFrame(payload, s.cfg.PaddingByte), dl)
	}

	if err := s.sendRaw(buildFirstFrame(len(payload), payload[:6], s.cfg.PaddingByte), dl); err != nil {
		return err
	}

	sent := 6
	s.txSeq = 1
	for sent < len(payload) {
		blockSize, stMin, err := s.waitFlowControl(dl)
		if err != nil {
			return err
		}

		block := 0
		for sent < len(payload) && (blockSize == 0 || block < blockSize) {
			if stMin > 0 {
				time.Sleep(stMin)
			}
			end := sent + 7
			if end > len(payload) {
				end = len(payload)
			}
			if err := s.sendRaw(buildConsecutiveFrame(s.txSeq, payload[sent:end], s.cfg.PaddingByte), dl); err != nil {
				return err
			}
			s.txSeq = (s.txSeq + 1) & 0x0F
			sent = end
			block++
		}
	}
	return nil
}

// SendFunctional broadcasts a payload on a functional arbitration ID
// (for example 0x7DF). Functional requests must fit a single frame; a
// multi-frame transfer cannot be flow-controlled by many ECUs at once.
func (s *Session) SendFunctional(funcID uint32, payload []byte, timeout time.Duration) error {
	if len(payload) == 0 || len(payload) > 7 {
		return fmt.Errorf("isotp: functional payload must be 1..7 bytes, got %d", len(payload))
	}
	f, err := canbus.New(funcID, buildSingleFrame(payload, s.cfg.PaddingByte))
	if err != nil {
		return err
	}
	if err := s.io.SendFrame(s.ch, f, timeout); err != nil {
		return &TransportFault{Err: err}
	}
	return nil
}

// waitFlowControl blocks for the peer's Flow Control frame. CTS yields
// the negotiated block size and separation time; Wait re-arms the wait;
// Overflow aborts the transfer.
func (s *Session) waitFlowControl(deadline time.Time) (int, time.Duration, error) {
	waits := 0
	for {
		limit := s.cfg.FCTimeout
		if until := time.Until(deadline); until < limit {
			limit = until
		}
		if limit <= 0 {
			return 0, 0, ErrTimeout
		}

		f, err := s.readFor(limit)
		if err != nil {
			return 0, 0, err
		}
		if f == nil {
			return 0, 0, ErrTimeout
		}

		pdu, err := parsePDU(f.Data)
		if err != nil {
			logger.Printf("dropping unparsable frame during FC wait: %v", err)
			continue
		}
		fc, ok := pdu.(*FlowControlFrame)
		if !ok {
			continue
		}

		switch fc.Status {
		case FlowContinueToSend:
			return fc.BlockSize, fc.STmin, nil
		case FlowWait:
			waits++
			if waits > s.cfg.MaxWaitFrames {
				return 0, 0, ErrMaxWaitFrames
			}
		case FlowOverflow:
			return 0, 0, ErrFlowControlOverflow
		}
	}
}

// Recv waits for one complete payload. A timeout with no transfer
// started is the normal "nothing arrived" signal and returns (nil, nil);
// a transfer that stalls mid-way returns ErrReassemblyTimeout and the
// partial buffer is discarded, never exposed.
func (s *Session) Recv(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		f, err := s.readFor(remaining)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, nil
		}

		pdu, err := parsePDU(f.Data)
		if err != nil {
			logger.Printf("dropping unparsable frame: %v", err)
			continue
		}

		switch p := pdu.(type) {
		case *SingleFrame:
			return p.Data, nil
		case *FirstFrame:
			return s.receiveMulti(p)
		default:
			// A stray CF or FC without an open transfer: ignore.
		}
	}
}

// receiveMulti runs the receiver half of a segmented transfer after a
// First Frame arrived.
func (s *Session) receiveMulti(ff *FirstFrame) ([]byte, error) {
	if ff.TotalSize > s.cfg.MaxFrameSize {
		// Tell the sender to abort before failing locally.
		if err := s.sendRaw(buildFlowControl(FlowOverflow, 0, 0, s.cfg.PaddingByte), time.Now().Add(s.cfg.FCTimeout)); err != nil {
			return nil, err
		}
		return nil, ErrFrameTooLong
	}

	buf := make([]byte, 0, ff.TotalSize)
	if len(ff.Data) > ff.TotalSize {
		buf = append(buf, ff.Data[:ff.TotalSize]...)
	} else {
		buf = append(buf, ff.Data...)
	}

	// Flow Control goes out immediately: ContinueToSend, the session's
	// advertised block size and STmin (0/0 by default).
	if err := s.sendRaw(buildFlowControl(FlowContinueToSend, int(s.cfg.BlockSize), s.cfg.STmin, s.cfg.PaddingByte), time.Now().Add(s.cfg.FCTimeout)); err != nil {
		return nil, err
	}

	expected := 1
	received := 0
	for len(buf) < ff.TotalSize {
		f, err := s.readFor(s.cfg.CFTimeout)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, ErrReassemblyTimeout
		}

		pdu, err := parsePDU(f.Data)
		if err != nil {
			logger.Printf("dropping unparsable frame mid-reassembly: %v", err)
			continue
		}
		cf, ok := pdu.(*ConsecutiveFrame)
		if !ok {
			continue
		}

		if cf.SequenceNumber != expected {
			if !s.cfg.LenientSequence {
				return nil, ErrWrongSequenceNumber
			}
			logger.Printf("sequence mismatch: expected %d got %d, continuing (lenient mode)", expected, cf.SequenceNumber)
		}
		expected = (cf.SequenceNumber + 1) & 0x0F

		need := ff.TotalSize - len(buf)
		chunk := cf.Data
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		buf = append(buf, chunk...)
		received++

		if s.cfg.BlockSize > 0 && received%int(s.cfg.BlockSize) == 0 && len(buf) < ff.TotalSize {
			if err := s.sendRaw(buildFlowControl(FlowContinueToSend, int(s.cfg.BlockSize), s.cfg.STmin, s.cfg.PaddingByte), time.Now().Add(s.cfg.FCTimeout)); err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

// Request performs one full round trip: send the request payload, then
// wait for a complete response. Both phases share a single deadline, so
// the caller blocks for at most timeout. This is the primitive the UDS
// engine is built on.
func (s *Session) Request(payload []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if err := s.Send(payload, timeout); err != nil {
		return nil, err
	}
	return s.Recv(time.Until(deadline))
}
