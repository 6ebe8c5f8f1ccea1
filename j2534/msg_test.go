package j2534

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

func TestMsgRoundTrip(t *testing.T) {
	f, err := canbus.New(0x7E0, []byte{0x02, 0x3E, 0x00})
	require.NoError(t, err)

	msg := toMsg(transport.ProtocolCAN, f)
	assert.Equal(t, uint32(transport.ProtocolCAN), msg.ProtocolID)
	assert.Equal(t, uint32(7), msg.DataSize)
	assert.Equal(t, []byte{0x00, 0x00, 0x07, 0xE0, 0x02, 0x3E, 0x00}, msg.Data[:7])
	assert.Zero(t, msg.TxFlags&FlagCAN29BitID)

	back, err := fromMsg(msg)
	require.NoError(t, err)
	assert.Equal(t, f.ID, back.ID)
	assert.Equal(t, f.Data, back.Data)
}

func TestMsgExtendedIDSetsTxFlag(t *testing.T) {
	f, err := canbus.New(0x18DAF110, []byte{0x01})
	require.NoError(t, err)

	msg := toMsg(transport.ProtocolCAN, f)
	assert.NotZero(t, msg.TxFlags&FlagCAN29BitID)
	assert.Equal(t, []byte{0x18, 0xDA, 0xF1, 0x10}, msg.Data[:4])
}

func TestFromMsgRejectsBogusSize(t *testing.T) {
	msg := &PassThruMsg{DataSize: 5000}
	_, err := fromMsg(msg)
	assert.Error(t, err)
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		code uintptr
		kind error
	}{
		{errDeviceInUse, transport.ErrDeviceBusy},
		{errChannelInUse, transport.ErrDeviceBusy},
		{errInvalidChannelID, transport.ErrInvalidChannel},
		{errInvalidProtocolID, transport.ErrUnsupportedProtocol},
		{errDeviceNotConnected, transport.ErrDeviceNotOpen},
		{errTimeout, transport.ErrTimeout},
		{errFailed, transport.ErrHardwareFault},
	}
	for _, tc := range cases {
		err := statusError("PassThruConnect", tc.code)
		assert.ErrorIs(t, err, tc.kind, "code 0x%02X", tc.code)
	}
}

func TestStatusErrorCarriesNativeCode(t *testing.T) {
	err := statusError("PassThruReadMsgs", errBufferOverflow)
	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, int64(errBufferOverflow), te.Native)
	assert.Contains(t, te.Detail, "ERR_BUFFER_OVERFLOW")
}
