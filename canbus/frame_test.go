package canbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMarshal(t *testing.T) {
	f, err := New(0x7DF, []byte{0x02, 0x3E, 0x00})
	require.NoError(t, err)

	raw := f.Marshal()
	assert.Equal(t, []byte{0x00, 0x00, 0x07, 0xDF, 0x02, 0x3E, 0x00}, raw)

	back, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, f.ID, back.ID)
	assert.Equal(t, f.Data, back.Data)
	assert.False(t, back.Extended)
}

func TestFrameMarshalExtendedID(t *testing.T) {
	f, err := New(0x18DAF110, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, f.Extended)

	back, err := Unmarshal(f.Marshal())
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18DAF110), back.ID)
	assert.True(t, back.Extended)
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	_, err := New(0x7E0, make([]byte, 9))
	assert.Error(t, err)
}

func TestUnmarshalRejectsShortMessage(t *testing.T) {
	_, err := Unmarshal([]byte{0x00, 0x07})
	assert.Error(t, err)
}

func TestFrameString(t *testing.T) {
	f, _ := New(0x7E8, []byte{0x06, 0x50, 0x03})
	assert.Equal(t, `<CanFrame 7e8 [3] "065003">`, f.String())
}
