// Package elm327 drives an ELM327-compatible interpreter (Bluetooth
// rfcomm or USB serial) as a FrameTransport. The device speaks an AT
// command dialect over a byte stream; every response block ends with a
// '>' prompt.
//
// The ELM327 exposes exactly one bus, so the adapter serves one logical
// channel.
package elm327

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

var logger = log.New(os.Stdout, "[ELM327] ", log.LstdFlags|log.Lshortfile)

const (
	// DefaultSerialBaud is the serial line rate, not the CAN bitrate.
	DefaultSerialBaud = 38400

	theChannel transport.ChannelID = 1

	initCommandTimeout = 2 * time.Second
	resetSettle        = 500 * time.Millisecond
)

// Adapter implements transport.FrameTransport over one ELM327 device.
// A per-operation mutex serializes access to the single command/prompt
// conversation the device supports.
type Adapter struct {
	mu         sync.Mutex
	path       string
	serialBaud uint32

	port io.ReadWriteCloser
	fd   int // -1 when the port is not a tty we configured

	connected bool
	header    uint32 // arbitration ID the last ATSH installed
	haveHdr   bool
	rx        []canbus.Frame
}

// New prepares an adapter for the serial device at path. Nothing is
// opened yet.
func New(path string, serialBaud uint32) *Adapter {
	if serialBaud == 0 {
		serialBaud = DefaultSerialBaud
	}
	return &Adapter{path: path, serialBaud: serialBaud, fd: -1}
}

// NewFromPort wraps an already-open byte stream, e.g. a TCP bridge to a
// WiFi ELM327 clone. The caller keeps ownership of line settings.
func NewFromPort(port io.ReadWriteCloser) *Adapter {
	return &Adapter{port: port, fd: -1}
}

func (a *Adapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port != nil {
		return nil
	}
	f, err := openPort(a.path)
	if err != nil {
		return transport.NewError("open", transport.ErrDriverLoadFailed,
			fmt.Sprintf("%s: %v", a.path, err))
	}
	a.fd = int(f.Fd())
	if err := configurePort(a.fd, a.serialBaud); err != nil {
		f.Close()
		a.fd = -1
		return transport.NewError("open", transport.ErrDriverLoadFailed, err.Error())
	}
	a.port = f
	logger.Printf("opened %s at %d baud", a.path, a.serialBaud)
	return nil
}

// Connect resets the interpreter and runs the init sequence. Only CAN
// protocols make sense here; the ELM is pinned to ISO 15765 at 500k
// with automatic formatting off, so raw frames pass through.
func (a *Adapter) Connect(proto transport.Protocol, baud uint32, flags uint32) (transport.ChannelID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return 0, transport.NewError("connect", transport.ErrDeviceNotOpen, "")
	}
	if a.connected {
		return 0, transport.NewError("connect", transport.ErrDeviceBusy, "single channel device")
	}
	if proto != transport.ProtocolCAN && proto != transport.ProtocolISO15765 {
		return 0, transport.NewError("connect", transport.ErrUnsupportedProtocol, proto.String())
	}

	if _, err := a.command("ATZ", initCommandTimeout); err != nil {
		return 0, err
	}
	time.Sleep(resetSettle)

	for _, cmd := range []string{
		"ATE0",   // echo off
		"ATL0",   // linefeeds off
		"ATH1",   // headers on, we need arbitration IDs
		"ATSP6",  // ISO 15765-4 CAN, 11-bit, 500 kbit
		"ATCAF0", // raw frames, no automatic ISO-TP formatting
	} {
		resp, err := a.command(cmd, initCommandTimeout)
		if err != nil {
			return 0, err
		}
		if strings.Contains(resp, "?") {
			return 0, transport.NewError("connect", transport.ErrHardwareFault,
				fmt.Sprintf("interpreter rejected %s", cmd))
		}
	}
	a.connected = true
	a.haveHdr = false
	return theChannel, nil
}

func (a *Adapter) SendFrame(ch transport.ChannelID, f canbus.Frame, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || ch != theChannel {
		return transport.NewError("send", transport.ErrInvalidChannel, "")
	}
	deadline := time.Now().Add(timeout)

	if !a.haveHdr || a.header != f.ID {
		hdr := fmt.Sprintf("ATSH%03X", f.ID&0x7FF)
		if f.Extended {
			hdr = fmt.Sprintf("ATSH%08X", f.ID)
		}
		if _, err := a.command(hdr, time.Until(deadline)); err != nil {
			return err
		}
		a.header = f.ID
		a.haveHdr = true
	}

	resp, err := a.command(formatPayload(f.Data), time.Until(deadline))
	if err != nil {
		return err
	}
	// Whatever the bus answered with rides in on the same prompt block.
	frames, err := parseResponse(resp)
	if err != nil {
		return transport.NewError("send", transport.ErrHardwareFault, err.Error())
	}
	a.rx = append(a.rx, frames...)
	return nil
}

func (a *Adapter) ReadFrame(ch transport.ChannelID, timeout time.Duration) (*canbus.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || ch != theChannel {
		return nil, transport.NewError("read", transport.ErrInvalidChannel, "")
	}
	if len(a.rx) > 0 {
		f := a.rx[0]
		a.rx = a.rx[1:]
		return &f, nil
	}

	// Nothing queued: late responses may still trickle out of the
	// interpreter until the next prompt.
	resp, _, err := a.readUntilPrompt(time.Now().Add(timeout))
	if err != nil {
		return nil, transport.NewError("read", transport.ErrHardwareFault, err.Error())
	}
	frames, perr := parseResponse(resp)
	if perr != nil {
		return nil, transport.NewError("read", transport.ErrHardwareFault, perr.Error())
	}
	a.rx = append(a.rx, frames...)
	if len(a.rx) == 0 {
		// Deadline expiry and an empty block both mean no frame yet.
		return nil, nil
	}
	f := a.rx[0]
	a.rx = a.rx[1:]
	return &f, nil
}

func (a *Adapter) Disconnect(ch transport.ChannelID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || ch != theChannel {
		return nil
	}
	a.connected = false
	a.rx = nil
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return nil
	}
	a.connected = false
	err := a.port.Close()
	a.port = nil
	a.fd = -1
	return err
}

// command writes one AT or data command and collects the response up to
// the next '>' prompt.
func (a *Adapter) command(cmd string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", transport.NewError("command", transport.ErrTimeout, cmd)
	}
	if _, err := a.port.Write([]byte(cmd + "\r")); err != nil {
		return "", transport.NewError("command", transport.ErrHardwareFault, err.Error())
	}
	resp, ok, err := a.readUntilPrompt(time.Now().Add(timeout))
	if err != nil {
		return "", transport.NewError("command", transport.ErrHardwareFault, err.Error())
	}
	if !ok {
		return "", transport.NewError("command", transport.ErrTimeout,
			fmt.Sprintf("no prompt after %s", cmd))
	}
	return resp, nil
}

// readUntilPrompt reads bytes until the '>' prompt or the deadline. The
// tty is in VMIN=0/VTIME mode, so reads poll in 100 ms slices instead
// of blocking. ok is false on deadline expiry; EOF counts as a complete
// block for piped test ports.
func (a *Adapter) readUntilPrompt(deadline time.Time) (string, bool, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := a.port.Read(buf)
		if err == io.EOF {
			return sb.String(), true, nil
		}
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			continue
		}
		if buf[0] == '>' {
			return sb.String(), true, nil
		}
		sb.WriteByte(buf[0])
	}
	return sb.String(), false, nil
}
