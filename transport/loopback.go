package transport

import (
	"sync"
	"time"

	"github.com/autodiag/vcistack/canbus"
)

// Responder inspects a frame the test subject just sent and returns any
// frames the simulated peer answers with. A nil return means silence.
type Responder func(sent canbus.Frame) []canbus.Frame

// Loopback is an in-memory transport for protocol tests: frames sent on
// a channel are handed to the channel's responder, whose answers become
// readable on the same channel. Reads poll a buffered queue and honor
// the timeout exactly like a real backend.
type Loopback struct {
	mu        sync.Mutex
	open      bool
	nextCh    ChannelID
	queues    map[ChannelID][]canbus.Frame
	responder map[ChannelID]Responder
	sent      []canbus.Frame
}

func NewLoopback() *Loopback {
	return &Loopback{
		queues:    make(map[ChannelID][]canbus.Frame),
		responder: make(map[ChannelID]Responder),
	}
}

func (l *Loopback) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return NewError("open", ErrDeviceBusy, "already open")
	}
	l.open = true
	return nil
}

func (l *Loopback) Connect(proto Protocol, baud uint32, flags uint32) (ChannelID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return 0, NewError("connect", ErrDeviceNotOpen, "")
	}
	l.nextCh++
	ch := l.nextCh
	l.queues[ch] = nil
	return ch, nil
}

// SetResponder installs the simulated peer for a channel.
func (l *Loopback) SetResponder(ch ChannelID, r Responder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responder[ch] = r
}

// Inject queues a frame for reading without a preceding send.
func (l *Loopback) Inject(ch ChannelID, frames ...canbus.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queues[ch] = append(l.queues[ch], frames...)
}

func (l *Loopback) SendFrame(ch ChannelID, f canbus.Frame, timeout time.Duration) error {
	l.mu.Lock()
	if _, ok := l.queues[ch]; !ok {
		l.mu.Unlock()
		return NewError("send_frame", ErrInvalidChannel, "")
	}
	l.sent = append(l.sent, f)
	r := l.responder[ch]
	l.mu.Unlock()

	if r != nil {
		replies := r(f)
		l.mu.Lock()
		l.queues[ch] = append(l.queues[ch], replies...)
		l.mu.Unlock()
	}
	return nil
}

func (l *Loopback) ReadFrame(ch ChannelID, timeout time.Duration) (*canbus.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		l.mu.Lock()
		q, ok := l.queues[ch]
		if !ok {
			l.mu.Unlock()
			return nil, NewError("read_frame", ErrInvalidChannel, "")
		}
		if len(q) > 0 {
			f := q[0]
			l.queues[ch] = q[1:]
			l.mu.Unlock()
			return &f, nil
		}
		l.mu.Unlock()
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (l *Loopback) Disconnect(ch ChannelID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.queues, ch)
	delete(l.responder, ch)
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	l.queues = make(map[ChannelID][]canbus.Frame)
	l.responder = make(map[ChannelID]Responder)
	return nil
}

// Sent returns a copy of every frame sent over the loopback.
func (l *Loopback) Sent() []canbus.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]canbus.Frame(nil), l.sent...)
}
