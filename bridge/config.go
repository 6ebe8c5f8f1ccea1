package bridge

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/autodiag/vcistack/transport"
)

// FileConfig is the yaml layout LoadConfig reads. The transport block
// feeds New; the diag block carries the addressing the application
// layers need.
type FileConfig struct {
	Transport Config `mapstructure:"transport"`

	Diag struct {
		TxID         uint32 `mapstructure:"tx_id"`
		RxID         uint32 `mapstructure:"rx_id"`
		FunctionalID uint32 `mapstructure:"functional_id"`
	} `mapstructure:"diag"`

	MQTT struct {
		Broker string `mapstructure:"broker"`
		Topic  string `mapstructure:"topic"`
	} `mapstructure:"mqtt"`
}

// LoadConfig reads a yaml config file.
func LoadConfig(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("transport.kind", string(KindMock))
	v.SetDefault("diag.tx_id", 0x7E0)
	v.SetDefault("diag.rx_id", 0x7E8)
	v.SetDefault("diag.functional_id", 0x7DF)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("bridge: read config: %w", err)
	}
	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("bridge: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// A process-wide default exists purely as an application-boundary
// convenience (one binary, one VCI). Libraries must take their
// transport as a parameter and never reach for this.
var (
	defaultMu  sync.RWMutex
	defaultCfg *Config
)

// SetDefault installs the process-wide backend config.
func SetDefault(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg = &cfg
}

// Default builds a transport from the config SetDefault installed.
func Default() (transport.FrameTransport, error) {
	defaultMu.RLock()
	cfg := defaultCfg
	defaultMu.RUnlock()
	if cfg == nil {
		return nil, fmt.Errorf("bridge: no default configured")
	}
	return New(*cfg)
}
