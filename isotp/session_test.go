package isotp

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

const (
	testTxID = 0x7E0
	testRxID = 0x7E8
)

// peerECU simulates the remote node: it reassembles what the session
// sends and answers First Frames with Flow Control.
type peerECU struct {
	mu        sync.Mutex
	assembled [][]byte
	cur       []byte
	remaining int

	fcStatus  FlowStatus
	blockSize byte
	stMin     byte
	fcSent    int
	cfInBlock int
}

func (p *peerECU) fcFrame(status FlowStatus) []canbus.Frame {
	p.fcSent++
	f, _ := canbus.New(testRxID, buildFlowControl(status, int(p.blockSize), p.stMin, DefaultPadding))
	return []canbus.Frame{f}
}

func (p *peerECU) respond(sent canbus.Frame) []canbus.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	pdu, err := parsePDU(sent.Data)
	if err != nil {
		return nil
	}
	switch d := pdu.(type) {
	case *SingleFrame:
		p.assembled = append(p.assembled, d.Data)
	case *FirstFrame:
		if p.fcStatus == FlowOverflow {
			return p.fcFrame(FlowOverflow)
		}
		p.cur = append([]byte(nil), d.Data...)
		p.remaining = d.TotalSize - len(d.Data)
		p.cfInBlock = 0
		return p.fcFrame(p.fcStatus)
	case *ConsecutiveFrame:
		take := p.remaining
		if take > len(d.Data) {
			take = len(d.Data)
		}
		p.cur = append(p.cur, d.Data[:take]...)
		p.remaining -= take
		p.cfInBlock++
		if p.remaining == 0 {
			p.assembled = append(p.assembled, p.cur)
			p.cur = nil
		} else if p.blockSize > 0 && p.cfInBlock == int(p.blockSize) {
			p.cfInBlock = 0
			return p.fcFrame(p.fcStatus)
		}
	}
	return nil
}

func newTestSession(t *testing.T, cfg Config) (*Session, *transport.Loopback, transport.ChannelID) {
	t.Helper()
	l := transport.NewLoopback()
	require.NoError(t, l.Open())
	ch, err := l.Connect(transport.ProtocolISO15765, 500000, 0)
	require.NoError(t, err)
	s, err := NewSession(l, ch, cfg)
	require.NoError(t, err)
	return s, l, ch
}

func TestSendRecvRoundTrip(t *testing.T) {
	for _, n := range []int{1, 3, 7, 8, 13, 62, 100, 4095} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
		peer := &peerECU{fcStatus: FlowContinueToSend}
		l.SetResponder(ch, peer.respond)

		require.NoError(t, s.Send(payload, 2*time.Second), "payload length %d", n)
		require.Len(t, peer.assembled, 1, "payload length %d", n)
		assert.True(t, bytes.Equal(payload, peer.assembled[0]), "payload length %d", n)
	}
}

func TestSingleFrameBoundary(t *testing.T) {
	// 7 bytes fit a Single Frame; 8 bytes need First Frame plus exactly
	// one Consecutive Frame.
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	peer := &peerECU{fcStatus: FlowContinueToSend}
	l.SetResponder(ch, peer.respond)

	require.NoError(t, s.Send(make([]byte, 7), time.Second))
	sent := l.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, byte(0x07), sent[0].Data[0])

	s2, l2, ch2 := newTestSession(t, DefaultConfig(testTxID, testRxID))
	peer2 := &peerECU{fcStatus: FlowContinueToSend}
	l2.SetResponder(ch2, peer2.respond)

	require.NoError(t, s2.Send(make([]byte, 8), time.Second))
	sent2 := l2.Sent()
	require.Len(t, sent2, 2)
	assert.Equal(t, byte(0x10), sent2[0].Data[0]&0xF0)
	assert.Equal(t, byte(0x21), sent2[1].Data[0])
}

func TestConsecutiveSequenceWraparound(t *testing.T) {
	// 6 + 18*7 bytes: 18 consecutive frames, sequence 1..15,0,1,2.
	payload := make([]byte, 6+18*7)
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	peer := &peerECU{fcStatus: FlowContinueToSend}
	l.SetResponder(ch, peer.respond)

	require.NoError(t, s.Send(payload, 2*time.Second))

	var seqs []int
	for _, f := range l.Sent() {
		if f.Data[0]&0xF0 == pciConsecutiveFrame {
			seqs = append(seqs, int(f.Data[0]&0x0F))
		}
	}
	require.Len(t, seqs, 18)
	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0, 1, 2}
	assert.Equal(t, want, seqs)
}

func TestFlowControlOverflowAbortsBeforeAnyCF(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	peer := &peerECU{fcStatus: FlowOverflow}
	l.SetResponder(ch, peer.respond)

	err := s.Send(make([]byte, 32), time.Second)
	assert.ErrorIs(t, err, ErrFlowControlOverflow)

	for _, f := range l.Sent() {
		assert.NotEqual(t, byte(pciConsecutiveFrame), f.Data[0]&0xF0,
			"no consecutive frame may follow an overflow")
	}
}

func TestSenderHonorsBlockSize(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	peer := &peerECU{fcStatus: FlowContinueToSend, blockSize: 2}
	l.SetResponder(ch, peer.respond)

	// 6 + 5*7 = 41 bytes: 5 CFs in blocks of 2 -> FC after FF, after CF2,
	// after CF4.
	require.NoError(t, s.Send(make([]byte, 41), 2*time.Second))
	assert.Equal(t, 3, peer.fcSent)
	require.Len(t, peer.assembled, 1)
	assert.Len(t, peer.assembled[0], 41)
}

func TestFlowControlWaitThenContinue(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))

	sentFF := false
	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.Data[0]&0xF0 == pciFirstFrame && !sentFF {
			sentFF = true
			wait, _ := canbus.New(testRxID, buildFlowControl(FlowWait, 0, 0, DefaultPadding))
			cts, _ := canbus.New(testRxID, buildFlowControl(FlowContinueToSend, 0, 0, DefaultPadding))
			return []canbus.Frame{wait, cts}
		}
		return nil
	})

	assert.NoError(t, s.Send(make([]byte, 20), time.Second))
}

func TestFlowControlTimeout(t *testing.T) {
	cfg := DefaultConfig(testTxID, testRxID)
	cfg.FCTimeout = 50 * time.Millisecond
	s, _, _ := newTestSession(t, cfg)

	start := time.Now()
	err := s.Send(make([]byte, 20), 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestRecvSingleFrame(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	f, _ := canbus.New(testRxID, buildSingleFrame([]byte{0x50, 0x03}, DefaultPadding))
	l.Inject(ch, f)

	data, err := s.Recv(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x03}, data)
}

func TestRecvMultiFrameSendsOneFlowControl(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))

	// Peer delivers the consecutive frames once it sees our FC.
	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.Data[0]&0xF0 != pciFlowControl {
			return nil
		}
		cf1, _ := canbus.New(testRxID, buildConsecutiveFrame(1, []byte{0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49}, DefaultPadding))
		cf2, _ := canbus.New(testRxID, buildConsecutiveFrame(2, []byte{0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F, 0x50}, DefaultPadding))
		return []canbus.Frame{cf1, cf2}
	})

	ff, _ := canbus.New(testRxID, buildFirstFrame(20, []byte{0x62, 0xF1, 0x90, 0x41, 0x42, 0x43}, DefaultPadding))
	l.Inject(ch, ff)

	data, err := s.Recv(time.Second)
	require.NoError(t, err)
	require.Len(t, data, 20)
	assert.Equal(t, []byte{0x62, 0xF1, 0x90}, data[:3])

	fcCount := 0
	for _, f := range l.Sent() {
		if f.Data[0]&0xF0 == pciFlowControl {
			fcCount++
		}
	}
	assert.Equal(t, 1, fcCount, "exactly one flow control for a block-size-0 receive")
}

func TestRecvMaxLengthReassembly(t *testing.T) {
	// 4095 bytes is the 12-bit length ceiling: one First Frame plus 585
	// Consecutive Frames, wrapping the sequence number many times over,
	// with a final one-byte chunk that must be trimmed of padding.
	payload := make([]byte, 4095)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.Data[0]&0xF0 != pciFlowControl {
			return nil
		}
		var cfs []canbus.Frame
		seq := 1
		for off := 6; off < len(payload); off += 7 {
			end := off + 7
			if end > len(payload) {
				end = len(payload)
			}
			cf, err := canbus.New(testRxID, buildConsecutiveFrame(seq, payload[off:end], DefaultPadding))
			require.NoError(t, err)
			cfs = append(cfs, cf)
			seq = (seq + 1) & 0x0F
		}
		return cfs
	})

	ff, _ := canbus.New(testRxID, buildFirstFrame(len(payload), payload[:6], DefaultPadding))
	l.Inject(ch, ff)

	data, err := s.Recv(5 * time.Second)
	require.NoError(t, err)
	require.Len(t, data, len(payload))
	assert.True(t, bytes.Equal(payload, data))
}

func TestRequestBoundedByOneTimeout(t *testing.T) {
	// A round trip must block for at most the caller's timeout, not one
	// timeout for the send phase plus another for the receive phase.
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))
	l.SetResponder(ch, func(canbus.Frame) []canbus.Frame {
		time.Sleep(150 * time.Millisecond)
		return nil
	})

	start := time.Now()
	resp, err := s.Request([]byte{0x3E, 0x00}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, resp, "silent peer yields no response")
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestRecvReassemblyTimeoutDiscardsPartial(t *testing.T) {
	cfg := DefaultConfig(testTxID, testRxID)
	cfg.CFTimeout = 50 * time.Millisecond
	s, l, ch := newTestSession(t, cfg)

	ff, _ := canbus.New(testRxID, buildFirstFrame(20, []byte{1, 2, 3, 4, 5, 6}, DefaultPadding))
	l.Inject(ch, ff)

	data, err := s.Recv(time.Second)
	assert.ErrorIs(t, err, ErrReassemblyTimeout)
	assert.Nil(t, data, "partial buffer must never surface")
}

func TestRecvSequenceMismatchAbortsByDefault(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))

	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.Data[0]&0xF0 != pciFlowControl {
			return nil
		}
		// Sequence jumps straight to 2: a frame was lost.
		cf, _ := canbus.New(testRxID, buildConsecutiveFrame(2, []byte{7, 8, 9, 10, 11, 12, 13}, DefaultPadding))
		return []canbus.Frame{cf}
	})

	ff, _ := canbus.New(testRxID, buildFirstFrame(20, []byte{1, 2, 3, 4, 5, 6}, DefaultPadding))
	l.Inject(ch, ff)

	_, err := s.Recv(time.Second)
	assert.ErrorIs(t, err, ErrWrongSequenceNumber)
}

func TestRecvSequenceMismatchLenientMode(t *testing.T) {
	cfg := DefaultConfig(testTxID, testRxID)
	cfg.LenientSequence = true
	s, l, ch := newTestSession(t, cfg)

	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.Data[0]&0xF0 != pciFlowControl {
			return nil
		}
		cf1, _ := canbus.New(testRxID, buildConsecutiveFrame(2, []byte{7, 8, 9, 10, 11, 12, 13}, DefaultPadding))
		cf2, _ := canbus.New(testRxID, buildConsecutiveFrame(3, []byte{14, 15, 16, 17, 18, 19, 20}, DefaultPadding))
		return []canbus.Frame{cf1, cf2}
	})

	ff, _ := canbus.New(testRxID, buildFirstFrame(20, []byte{1, 2, 3, 4, 5, 6}, DefaultPadding))
	l.Inject(ch, ff)

	data, err := s.Recv(time.Second)
	require.NoError(t, err)
	assert.Len(t, data, 20)
}

func TestRecvNothingReturnsNilNil(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultConfig(testTxID, testRxID))

	start := time.Now()
	data, err := s.Recv(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestRecvIgnoresForeignIDs(t *testing.T) {
	s, l, ch := newTestSession(t, DefaultConfig(testTxID, testRxID))

	foreign, _ := canbus.New(0x123, buildSingleFrame([]byte{0xDE, 0xAD}, DefaultPadding))
	mine, _ := canbus.New(testRxID, buildSingleFrame([]byte{0x7E, 0x00}, DefaultPadding))
	l.Inject(ch, foreign, mine)

	data, err := s.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x00}, data)
}

func TestSendFunctionalRejectsMultiFrame(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultConfig(testTxID, testRxID))
	err := s.SendFunctional(0x7DF, make([]byte, 8), time.Second)
	assert.Error(t, err)
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultConfig(testTxID, testRxID))
	err := s.Send(make([]byte, 4096), time.Second)
	assert.Error(t, err)
}
