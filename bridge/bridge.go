// Package bridge turns a declarative backend configuration into a live
// FrameTransport. It is the only place that knows every backend by
// name; everything above it works against the transport contract.
package bridge

import (
	"fmt"

	"github.com/autodiag/vcistack/elm327"
	"github.com/autodiag/vcistack/j2534"
	"github.com/autodiag/vcistack/transport"
)

// Kind selects a backend. The enum is closed: New matches it
// exhaustively and rejects anything else.
type Kind string

const (
	KindJ2534  Kind = "j2534"
	KindELM327 Kind = "elm327"
	KindMock   Kind = "mock"
)

// Config describes one VCI backend.
type Config struct {
	Kind Kind `mapstructure:"kind"`

	// DriverPath is the PassThru vendor DLL (j2534 only).
	DriverPath string `mapstructure:"driver_path"`

	// Port is the serial device node or COM port (elm327 only).
	Port string `mapstructure:"port"`

	// SerialBaud is the serial line rate for elm327, not the CAN
	// bitrate. Zero means the adapter default.
	SerialBaud uint32 `mapstructure:"serial_baud"`

	// Bitrate is the CAN bus bitrate handed to Connect.
	Bitrate uint32 `mapstructure:"bitrate"`

	// Protocol is the J2534 protocol id for Connect; zero means
	// ISO15765.
	Protocol uint32 `mapstructure:"protocol"`
}

// BusProtocol resolves the configured protocol, defaulting to ISO15765.
func (c Config) BusProtocol() transport.Protocol {
	if c.Protocol == 0 {
		return transport.ProtocolISO15765
	}
	return transport.Protocol(c.Protocol)
}

// BusBitrate resolves the configured bitrate, defaulting to 500 kbit.
func (c Config) BusBitrate() uint32 {
	if c.Bitrate == 0 {
		return 500000
	}
	return c.Bitrate
}

// New builds the transport the config names. It is a pure function of
// its argument: no globals are consulted and nothing is opened yet -
// the caller drives Open/Connect.
func New(cfg Config) (transport.FrameTransport, error) {
	switch cfg.Kind {
	case KindJ2534:
		if cfg.DriverPath == "" {
			return nil, fmt.Errorf("bridge: kind %q needs driver_path", cfg.Kind)
		}
		dev, err := j2534.New(cfg.DriverPath)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case KindELM327:
		if cfg.Port == "" {
			return nil, fmt.Errorf("bridge: kind %q needs port", cfg.Kind)
		}
		return elm327.New(cfg.Port, cfg.SerialBaud), nil
	case KindMock:
		return transport.NewMock(), nil
	default:
		return nil, fmt.Errorf("bridge: unknown transport kind %q", cfg.Kind)
	}
}
