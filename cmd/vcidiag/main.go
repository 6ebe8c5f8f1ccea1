// vcidiag opens the configured VCI, brings up a diagnostic session and
// reads the vehicle identification number.
//
// Usage:
//
//	vcidiag [-config config.yaml] [-tap]
package main

import (
	"flag"
	"log"
	"time"

	"github.com/autodiag/vcistack/bridge"
	"github.com/autodiag/vcistack/bustap"
	"github.com/autodiag/vcistack/isotp"
	"github.com/autodiag/vcistack/logrecorder"
	"github.com/autodiag/vcistack/transport"
	"github.com/autodiag/vcistack/uds"
)

func main() {
	configPath := flag.String("config", "config.yaml", "yaml configuration file")
	withTap := flag.Bool("tap", false, "mirror frames to the configured MQTT broker")
	flag.Parse()

	logrecorder.InitAndRotate("vcidiag_")

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	dev, err := bridge.New(cfg.Transport)
	if err != nil {
		log.Fatal(err)
	}
	if err := dev.Open(); err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	ch, err := dev.Connect(cfg.Transport.BusProtocol(), cfg.Transport.BusBitrate(), 0)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Disconnect(ch)

	var bus transport.FrameTransport = dev
	if *withTap {
		tap := bustap.NewTap(bustap.Config{
			Broker: cfg.MQTT.Broker,
			Topic:  cfg.MQTT.Topic,
		})
		if err := tap.Start(); err != nil {
			log.Printf("bus tap unavailable: %v", err)
		} else {
			defer tap.Stop()
			bus = tap.Transport(dev)
		}
	}

	sess, err := isotp.NewSession(bus, ch, isotp.DefaultConfig(cfg.Diag.TxID, cfg.Diag.RxID))
	if err != nil {
		log.Fatal(err)
	}

	client, err := uds.NewClient(sess, nil)
	if err != nil {
		log.Fatal(err)
	}

	vin, err := client.ReadDataByIdentifier(0xF190, 2*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("VIN: %s", vin)
}
