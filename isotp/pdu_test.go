package isotp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleFrame(t *testing.T) {
	pdu, err := parsePDU([]byte{0x03, 0x11, 0x22, 0x33, 0xAA, 0xAA, 0xAA, 0xAA})
	require.NoError(t, err)
	sf, ok := pdu.(*SingleFrame)
	require.True(t, ok)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, sf.Data)
}

func TestParseSingleFrameLengthExceedsPayload(t *testing.T) {
	_, err := parsePDU([]byte{0x05, 0x11})
	assert.Error(t, err)
}

func TestParseFirstFrame(t *testing.T) {
	// 12-bit length 0x014 = 20 bytes, first 6 payload bytes follow.
	pdu, err := parsePDU([]byte{0x10, 0x14, 0x62, 0xF1, 0x90, 0x41, 0x42, 0x43})
	require.NoError(t, err)
	ff, ok := pdu.(*FirstFrame)
	require.True(t, ok)
	assert.Equal(t, 20, ff.TotalSize)
	assert.Equal(t, []byte{0x62, 0xF1, 0x90, 0x41, 0x42, 0x43}, ff.Data)
}

func TestParseConsecutiveFrame(t *testing.T) {
	pdu, err := parsePDU([]byte{0x25, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	require.NoError(t, err)
	cf, ok := pdu.(*ConsecutiveFrame)
	require.True(t, ok)
	assert.Equal(t, 5, cf.SequenceNumber)
	assert.Len(t, cf.Data, 7)
}

func TestParseFlowControl(t *testing.T) {
	pdu, err := parsePDU([]byte{0x30, 0x08, 0x14})
	require.NoError(t, err)
	fc, ok := pdu.(*FlowControlFrame)
	require.True(t, ok)
	assert.Equal(t, FlowContinueToSend, fc.Status)
	assert.Equal(t, 8, fc.BlockSize)
	assert.Equal(t, 20*time.Millisecond, fc.STmin)
}

func TestParseFlowControlRejectsUnknownStatus(t *testing.T) {
	_, err := parsePDU([]byte{0x33, 0x00, 0x00})
	assert.Error(t, err)
}

func TestDecodeSTmin(t *testing.T) {
	tests := []struct {
		name string
		b    byte
		want time.Duration
	}{
		{"zero", 0x00, 0},
		{"milliseconds", 0x7F, 127 * time.Millisecond},
		{"microseconds low", 0xF1, 100 * time.Microsecond},
		{"microseconds high", 0xF9, 900 * time.Microsecond},
		{"reserved maps to zero", 0x80, 0},
		{"reserved high maps to zero", 0xFA, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSTmin(tt.b))
		})
	}
}

func TestBuildFramesArePadded(t *testing.T) {
	sf := buildSingleFrame([]byte{0x3E, 0x00}, DefaultPadding)
	assert.Equal(t, []byte{0x02, 0x3E, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, sf)

	fc := buildFlowControl(FlowContinueToSend, 0, 0, DefaultPadding)
	assert.Equal(t, []byte{0x30, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, fc)

	cf := buildConsecutiveFrame(1, []byte{0x01, 0x02}, DefaultPadding)
	assert.Equal(t, []byte{0x21, 0x01, 0x02, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, cf)
}
