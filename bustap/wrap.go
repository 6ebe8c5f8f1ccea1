package bustap

import (
	"time"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

// tapped decorates a transport so every frame that crosses it is
// mirrored to the tap.
type tapped struct {
	transport.FrameTransport
	tap *Tap
}

// Transport wraps inner so all traffic through it feeds this tap.
func (t *Tap) Transport(inner transport.FrameTransport) transport.FrameTransport {
	return &tapped{FrameTransport: inner, tap: t}
}

func (w *tapped) SendFrame(ch transport.ChannelID, f canbus.Frame, timeout time.Duration) error {
	err := w.FrameTransport.SendFrame(ch, f, timeout)
	if err == nil {
		w.tap.Observe(f)
	}
	return err
}

func (w *tapped) ReadFrame(ch transport.ChannelID, timeout time.Duration) (*canbus.Frame, error) {
	f, err := w.FrameTransport.ReadFrame(ch, timeout)
	if err == nil && f != nil {
		w.tap.Observe(*f)
	}
	return f, err
}
