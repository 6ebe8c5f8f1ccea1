package transport

import (
	"sync"
	"time"

	"github.com/autodiag/vcistack/canbus"
)

// Mock is the hardware-free backend: it accepts every send, never
// produces a frame, and never blocks longer than the timeout it was
// given. Used by tests and by environments without a VCI attached.
type Mock struct {
	mu       sync.Mutex
	open     bool
	nextCh   ChannelID
	channels map[ChannelID]Protocol
	sent     []canbus.Frame
}

func NewMock() *Mock {
	return &Mock{channels: make(map[ChannelID]Protocol)}
}

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

func (m *Mock) Connect(proto Protocol, baud uint32, flags uint32) (ChannelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, NewError("connect", ErrDeviceNotOpen, "")
	}
	m.nextCh++
	ch := m.nextCh
	m.channels[ch] = proto
	return ch, nil
}

func (m *Mock) SendFrame(ch ChannelID, f canbus.Frame, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch]; !ok {
		return NewError("send_frame", ErrInvalidChannel, "")
	}
	m.sent = append(m.sent, f)
	return nil
}

// ReadFrame sleeps out the timeout and reports no frame.
func (m *Mock) ReadFrame(ch ChannelID, timeout time.Duration) (*canbus.Frame, error) {
	m.mu.Lock()
	_, ok := m.channels[ch]
	m.mu.Unlock()
	if !ok {
		return nil, NewError("read_frame", ErrInvalidChannel, "")
	}
	time.Sleep(timeout)
	return nil, nil
}

// Disconnect is a no-op success even for channels already closed.
func (m *Mock) Disconnect(ch ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, ch)
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.channels = make(map[ChannelID]Protocol)
	return nil
}

// Sent returns a copy of every frame handed to SendFrame.
func (m *Mock) Sent() []canbus.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]canbus.Frame(nil), m.sent...)
}
