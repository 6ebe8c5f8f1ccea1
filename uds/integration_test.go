package uds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/isotp"
	"github.com/autodiag/vcistack/transport"
)

// Reads the VIN through the full stack: UDS client over an ISO-TP
// session over the loopback transport, with the loopback responder
// playing a segmenting ECU.
func TestReadVINOverFullStack(t *testing.T) {
	lb := transport.NewLoopback()
	require.NoError(t, lb.Open())
	ch, err := lb.Connect(transport.ProtocolISO15765, 500000, 0)
	require.NoError(t, err)
	defer lb.Close()

	vin := "W0L000051T2123456"
	response := append([]byte{0x62, 0xF1, 0x90}, vin...)
	require.Len(t, response, 20)

	lb.SetResponder(ch, func(sent canbus.Frame) []canbus.Frame {
		if sent.ID != 0x7DF || len(sent.Data) == 0 {
			return nil
		}
		switch sent.Data[0] & 0xF0 {
		case 0x00: // request arrived, answer with the first frame
			return []canbus.Frame{
				{ID: 0x7E8, Data: append([]byte{0x10, byte(len(response))}, response[:6]...)},
			}
		case 0x30: // tester's flow control releases the remainder
			return []canbus.Frame{
				{ID: 0x7E8, Data: append([]byte{0x21}, response[6:13]...)},
				{ID: 0x7E8, Data: append([]byte{0x22}, response[13:]...)},
			}
		}
		return nil
	})

	sess, err := isotp.NewSession(lb, ch, isotp.DefaultConfig(0x7DF, 0x7E8))
	require.NoError(t, err)
	client, err := NewClient(sess, nil)
	require.NoError(t, err)

	got, err := client.ReadDataByIdentifier(0xF190, time.Second)
	require.NoError(t, err)
	assert.Equal(t, vin, string(got))

	fcCount := 0
	for _, f := range lb.Sent() {
		if len(f.Data) > 0 && f.Data[0]&0xF0 == 0x30 {
			fcCount++
		}
	}
	assert.Equal(t, 1, fcCount, "a 20 byte transfer needs exactly one flow control")
}
