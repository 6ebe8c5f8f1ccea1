// Package bustap mirrors observed CAN traffic to an MQTT broker so bus
// activity can be watched from anywhere without touching the diagnostic
// session. The tap is strictly an observer: a slow or absent broker
// drops frames rather than stalling the caller.
package bustap

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"

	"github.com/autodiag/vcistack/canbus"
)

var logger = log.New(os.Stdout, "[BusTap] ", log.LstdFlags|log.Lshortfile)

// Config for the MQTT side of the tap.
type Config struct {
	Broker         string        `mapstructure:"broker"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ClientID       string        `mapstructure:"client_id"`
	Topic          string        `mapstructure:"topic"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueueDepth     int           `mapstructure:"queue_depth"`
}

func generateClientID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("vcistack-tap-%d", time.Now().UnixNano())
	}
	return "vcistack-tap-" + hex.EncodeToString(b)
}

// DefaultConfig returns a localhost tap configuration.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       generateClientID(),
		Topic:          "vci/frames",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		QueueDepth:     256,
	}
}

// frameMessage is the wire form of one observed frame.
type frameMessage struct {
	ID       uint32 `json:"id"`
	DataHex  string `json:"data_hex"`
	Extended bool   `json:"extended"`
	TS       int64  `json:"ts"`
}

func encodeFrame(f canbus.Frame) ([]byte, error) {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(frameMessage{
		ID:       f.ID,
		DataHex:  hex.EncodeToString(f.Data),
		Extended: f.Extended,
		TS:       ts.UnixMilli(),
	})
}

// Tap publishes observed frames to MQTT. Observe never blocks; when the
// internal queue is full the frame is counted as dropped and forgotten.
type Tap struct {
	config Config
	client mqttLib.Client

	queue    chan canbus.Frame
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	dropped uint64
	running bool
}

// NewTap prepares a tap; nothing connects until Start.
func NewTap(config Config) *Tap {
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 256
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &Tap{
		config:   config,
		queue:    make(chan canbus.Frame, config.QueueDepth),
		stopChan: make(chan struct{}),
	}
}

// Start connects to the broker and begins draining the queue.
func (t *Tap) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("bustap: already started")
	}

	opts := mqttLib.NewClientOptions()
	opts.AddBroker(t.config.Broker)
	opts.SetClientID(t.config.ClientID)
	opts.SetConnectTimeout(t.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if t.config.Username != "" && t.config.Password != "" {
		opts.SetUsername(t.config.Username)
		opts.SetPassword(t.config.Password)
	}

	t.client = mqttLib.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(t.config.ConnectTimeout) {
		return fmt.Errorf("bustap: connect to %s timed out", t.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("bustap: connect: %w", err)
	}

	t.wg.Add(1)
	go t.publishLoop()
	t.running = true
	logger.Printf("publishing frames to %s topic %s", t.config.Broker, t.config.Topic)
	return nil
}

// Observe hands one frame to the tap. Safe from any goroutine, never
// blocks.
func (t *Tap) Observe(f canbus.Frame) {
	select {
	case t.queue <- f:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}
}

// Dropped reports how many frames were discarded because the queue was
// full.
func (t *Tap) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Stop drains what is queued and disconnects.
func (t *Tap) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopChan)
	t.wg.Wait()
	t.client.Disconnect(250)
	logger.Println("tap stopped")
}

func (t *Tap) publishLoop() {
	defer t.wg.Done()
	for {
		select {
		case f := <-t.queue:
			t.publish(f)
		case <-t.stopChan:
			// Flush whatever is still queued.
			for {
				select {
				case f := <-t.queue:
					t.publish(f)
				default:
					return
				}
			}
		}
	}
}

func (t *Tap) publish(f canbus.Frame) {
	payload, err := encodeFrame(f)
	if err != nil {
		logger.Printf("encode frame: %v", err)
		return
	}
	token := t.client.Publish(t.config.Topic, t.config.QoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Printf("publish: %v", err)
	}
}
