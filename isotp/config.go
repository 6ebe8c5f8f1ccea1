package isotp

import (
	"fmt"
	"time"
)

// DefaultPadding is the project-wide padding byte. Some target ECUs
// reject unpadded frames, so every transmitted frame is filled to 8
// bytes with this value unless the config overrides it.
const DefaultPadding byte = 0xAA

// Config holds the per-session ISO-TP parameters.
type Config struct {
	// TxID and RxID are the arbitration IDs of one request/response pair,
	// e.g. 0x7E0/0x7E8 or the functional 0x7DF for broadcast requests.
	TxID uint32
	RxID uint32

	// FCTimeout bounds the wait for a Flow Control frame after a First
	// Frame was sent.
	FCTimeout time.Duration
	// CFTimeout bounds the gap between Consecutive Frames on receive.
	CFTimeout time.Duration

	// BlockSize and STmin are advertised in the Flow Control frames this
	// session sends; 0/0 lets the peer stream the whole transfer.
	BlockSize byte
	STmin     byte

	// PaddingByte fills every transmitted frame to 8 bytes.
	PaddingByte byte

	// MaxWaitFrames limits consecutive FC Wait frames before the send is
	// aborted.
	MaxWaitFrames int

	// MaxFrameSize caps the payload length we accept from a First Frame.
	MaxFrameSize int

	// LenientSequence preserves the legacy behavior of logging a sequence
	// number mismatch and continuing reassembly. The default aborts: a
	// mismatch normally means a lost frame.
	LenientSequence bool
}

// DefaultConfig returns the parameters used by the diagnostic stack
// unless a caller overrides them.
func DefaultConfig(txID, rxID uint32) Config {
	return Config{
		TxID:          txID,
		RxID:          rxID,
		FCTimeout:     1000 * time.Millisecond,
		CFTimeout:     1000 * time.Millisecond,
		BlockSize:     0,
		STmin:         0,
		PaddingByte:   DefaultPadding,
		MaxWaitFrames: 8,
		MaxFrameSize:  4095,
	}
}

// Validate rejects parameter combinations the state machine cannot run
// with.
func (c *Config) Validate() error {
	if c.TxID == c.RxID {
		return fmt.Errorf("isotp: tx and rx arbitration IDs must differ")
	}
	if c.FCTimeout <= 0 {
		return fmt.Errorf("isotp: flow control timeout must be positive")
	}
	if c.CFTimeout <= 0 {
		return fmt.Errorf("isotp: consecutive frame timeout must be positive")
	}
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > 4095 {
		return fmt.Errorf("isotp: max frame size must be within 1..4095")
	}
	if c.MaxWaitFrames < 0 {
		return fmt.Errorf("isotp: max wait frames must not be negative")
	}
	return nil
}
