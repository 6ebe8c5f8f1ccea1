package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodiag/vcistack/canbus"
)

func TestMockReadFrameReturnsWithinTimeout(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Open())
	ch, err := m.Connect(ProtocolISO15765, 500000, 0)
	require.NoError(t, err)

	start := time.Now()
	f, err := m.ReadFrame(ch, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, f, "timeout must surface as (nil, nil), not an error")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond, "read must not block past its deadline")
}

func TestMockConnectRequiresOpen(t *testing.T) {
	m := NewMock()
	_, err := m.Connect(ProtocolCAN, 500000, 0)
	assert.True(t, errors.Is(err, ErrDeviceNotOpen))
}

func TestMockInvalidChannel(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Open())

	f, _ := canbus.New(0x7E0, []byte{0x01})
	err := m.SendFrame(ChannelID(99), f, time.Second)
	assert.True(t, errors.Is(err, ErrInvalidChannel))

	_, err = m.ReadFrame(ChannelID(99), time.Millisecond)
	assert.True(t, errors.Is(err, ErrInvalidChannel))
}

func TestDisconnectAndCloseIdempotent(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Open())
	ch, err := m.Connect(ProtocolISO15765, 500000, 0)
	require.NoError(t, err)

	assert.NoError(t, m.Disconnect(ch))
	assert.NoError(t, m.Disconnect(ch), "disconnecting a closed channel is a no-op success")
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestLoopbackResponder(t *testing.T) {
	l := NewLoopback()
	require.NoError(t, l.Open())
	ch, err := l.Connect(ProtocolISO15765, 500000, 0)
	require.NoError(t, err)

	l.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		reply, _ := canbus.New(0x7E8, []byte{0x02, 0x7E, 0x00})
		return []canbus.Frame{reply}
	})

	req, _ := canbus.New(0x7E0, []byte{0x02, 0x3E, 0x00})
	require.NoError(t, l.SendFrame(ch, req, time.Second))

	got, err := l.ReadFrame(ch, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint32(0x7E8), got.ID)
	assert.Equal(t, []byte{0x02, 0x7E, 0x00}, got.Data)
}

func TestLoopbackReadTimesOutEmpty(t *testing.T) {
	l := NewLoopback()
	require.NoError(t, l.Open())
	ch, err := l.Connect(ProtocolISO15765, 500000, 0)
	require.NoError(t, err)

	f, err := l.ReadFrame(ch, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, f)
}
