//go:build windows

package j2534

import (
	"log"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/autodiag/vcistack/canbus"
	"github.com/autodiag/vcistack/transport"
)

var logger = log.New(os.Stdout, "[J2534] ", log.LstdFlags|log.Lshortfile)

// Vendor DLLs may block forever inside PassThruOpen/PassThruConnect.
const vendorCallTimeout = 5 * time.Second

// Device drives one PassThru VCI through a vendor DLL. It implements
// transport.FrameTransport; a per-operation mutex keeps interleaved
// sessions off each other's vendor calls.
type Device struct {
	mu       sync.Mutex
	dll      syscall.Handle
	procs    procTable
	deviceID uint32
	opened   bool
	channels map[transport.ChannelID]transport.Protocol
}

type procTable struct {
	open           uintptr
	close          uintptr
	connect        uintptr
	disconnect     uintptr
	readMsgs       uintptr
	writeMsgs      uintptr
	startMsgFilter uintptr
}

// New loads the vendor DLL. A missing binary or a 32/64-bit mismatch
// both come back as ErrDriverLoadFailed.
func New(dllPath string) (*Device, error) {
	h, err := syscall.LoadLibrary(dllPath)
	if err != nil {
		return nil, transport.NewError("LoadLibrary", transport.ErrDriverLoadFailed, dllPath+": "+err.Error())
	}

	var bindErr error
	bind := func(name string) uintptr {
		addr, err := syscall.GetProcAddress(h, name)
		if err != nil && bindErr == nil {
			bindErr = transport.NewError("GetProcAddress", transport.ErrDriverLoadFailed, name+": "+err.Error())
		}
		return addr
	}
	d := &Device{
		dll: h,
		procs: procTable{
			open:           bind("PassThruOpen"),
			close:          bind("PassThruClose"),
			connect:        bind("PassThruConnect"),
			disconnect:     bind("PassThruDisconnect"),
			readMsgs:       bind("PassThruReadMsgs"),
			writeMsgs:      bind("PassThruWriteMsgs"),
			startMsgFilter: bind("PassThruStartMsgFilter"),
		},
		channels: make(map[transport.ChannelID]transport.Protocol),
	}
	if bindErr != nil {
		syscall.FreeLibrary(h)
		return nil, bindErr
	}
	logger.Printf("loaded %s", dllPath)
	return d, nil
}

func (d *Device) call(op string, proc uintptr, args ...uintptr) error {
	ret, _, _ := syscall.SyscallN(proc, args...)
	if ret != statusNoError {
		return statusError(op, ret)
	}
	return nil
}

// callBounded runs a vendor call that has no timeout parameter of its
// own. An abandoned call cannot be cancelled, but the caller's deadline
// holds.
func callBounded(op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(vendorCallTimeout):
		return transport.NewError(op, transport.ErrTimeout, "vendor call did not return")
	}
}

func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil
	}
	err := callBounded("PassThruOpen", func() error {
		return d.call("PassThruOpen", d.procs.open, 0, uintptr(unsafe.Pointer(&d.deviceID)))
	})
	if err != nil {
		return err
	}
	d.opened = true
	return nil
}

func (d *Device) Connect(proto transport.Protocol, baud uint32, flags uint32) (transport.ChannelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return 0, transport.NewError("PassThruConnect", transport.ErrDeviceNotOpen, "")
	}
	var channelID uint32
	err := callBounded("PassThruConnect", func() error {
		return d.call("PassThruConnect", d.procs.connect,
			uintptr(d.deviceID), uintptr(proto), uintptr(flags), uintptr(baud),
			uintptr(unsafe.Pointer(&channelID)))
	})
	if err != nil {
		return 0, err
	}
	ch := transport.ChannelID(channelID)
	d.channels[ch] = proto

	// Without at least one filter the device delivers nothing. Frame
	// selection happens upstream, so accept everything here.
	if err := d.startPassAllFilter(ch, proto); err != nil {
		d.disconnectLocked(ch)
		return 0, err
	}
	return ch, nil
}

func (d *Device) startPassAllFilter(ch transport.ChannelID, proto transport.Protocol) error {
	mask := &PassThruMsg{ProtocolID: uint32(proto), DataSize: 4}
	pattern := &PassThruMsg{ProtocolID: uint32(proto), DataSize: 4}
	var filterID uint32
	return d.call("PassThruStartMsgFilter", d.procs.startMsgFilter,
		uintptr(ch), PassFilter,
		uintptr(unsafe.Pointer(mask)), uintptr(unsafe.Pointer(pattern)), 0,
		uintptr(unsafe.Pointer(&filterID)))
}

func (d *Device) SendFrame(ch transport.ChannelID, f canbus.Frame, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	proto, ok := d.channels[ch]
	if !ok {
		return transport.NewError("PassThruWriteMsgs", transport.ErrInvalidChannel, "")
	}
	msg := toMsg(proto, f)
	numMsgs := uint32(1)
	return d.call("PassThruWriteMsgs", d.procs.writeMsgs,
		uintptr(ch), uintptr(unsafe.Pointer(msg)),
		uintptr(unsafe.Pointer(&numMsgs)), uintptr(timeout.Milliseconds()))
}

func (d *Device) ReadFrame(ch transport.ChannelID, timeout time.Duration) (*canbus.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.channels[ch]; !ok {
		return nil, transport.NewError("PassThruReadMsgs", transport.ErrInvalidChannel, "")
	}
	msg := &PassThruMsg{}
	numMsgs := uint32(1)
	ret, _, _ := syscall.SyscallN(d.procs.readMsgs,
		uintptr(ch), uintptr(unsafe.Pointer(msg)),
		uintptr(unsafe.Pointer(&numMsgs)), uintptr(timeout.Milliseconds()))
	switch ret {
	case statusNoError:
	case errTimeout, errBufferEmpty:
		// Nothing arrived inside the window. Not an error.
		return nil, nil
	default:
		return nil, statusError("PassThruReadMsgs", ret)
	}
	if numMsgs == 0 {
		return nil, nil
	}
	return fromMsg(msg)
}

func (d *Device) Disconnect(ch transport.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectLocked(ch)
}

func (d *Device) disconnectLocked(ch transport.ChannelID) error {
	if _, ok := d.channels[ch]; !ok {
		return nil
	}
	delete(d.channels, ch)
	return d.call("PassThruDisconnect", d.procs.disconnect, uintptr(ch))
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	for ch := range d.channels {
		d.disconnectLocked(ch)
	}
	err := d.call("PassThruClose", d.procs.close, uintptr(d.deviceID))
	syscall.FreeLibrary(d.dll)
	d.opened = false
	return err
}
