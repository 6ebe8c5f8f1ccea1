package bridge

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodiag/vcistack/transport"
)

func TestNewMockKind(t *testing.T) {
	tp, err := New(Config{Kind: KindMock})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.IsType(t, &transport.Mock{}, tp)
}

func TestNewELM327Kind(t *testing.T) {
	tp, err := New(Config{Kind: KindELM327, Port: "/dev/rfcomm0"})
	require.NoError(t, err)
	require.NotNil(t, tp)
}

func TestNewELM327NeedsPort(t *testing.T) {
	_, err := New(Config{Kind: KindELM327})
	assert.Error(t, err)
}

func TestNewJ2534NeedsDriverPath(t *testing.T) {
	_, err := New(Config{Kind: KindJ2534})
	assert.Error(t, err)
}

func TestNewJ2534MissingDriver(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows resolves the DLL for real")
	}
	_, err := New(Config{Kind: KindJ2534, DriverPath: "nope.dll"})
	assert.ErrorIs(t, err, transport.ErrDriverLoadFailed)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "socketcan"})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.Equal(t, transport.ProtocolISO15765, c.BusProtocol())
	assert.Equal(t, uint32(500000), c.BusBitrate())

	c = Config{Protocol: uint32(transport.ProtocolCAN), Bitrate: 250000}
	assert.Equal(t, transport.ProtocolCAN, c.BusProtocol())
	assert.Equal(t, uint32(250000), c.BusBitrate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
transport:
  kind: elm327
  port: /dev/rfcomm0
  serial_baud: 115200
diag:
  tx_id: 0x7E0
mqtt:
  broker: tcp://localhost:1883
  topic: vci/frames
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, KindELM327, cfg.Transport.Kind)
	assert.Equal(t, "/dev/rfcomm0", cfg.Transport.Port)
	assert.Equal(t, uint32(115200), cfg.Transport.SerialBaud)
	assert.Equal(t, uint32(0x7E0), cfg.Diag.TxID)
	// Unset keys fall back to the registered defaults.
	assert.Equal(t, uint32(0x7E8), cfg.Diag.RxID)
	assert.Equal(t, uint32(0x7DF), cfg.Diag.FunctionalID)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultCfg = nil
		defaultMu.Unlock()
	})

	_, err := Default()
	assert.Error(t, err, "no default installed yet")

	SetDefault(Config{Kind: KindMock})
	tp, err := Default()
	require.NoError(t, err)
	assert.NotNil(t, tp)
}
