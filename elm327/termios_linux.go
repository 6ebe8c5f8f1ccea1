//go:build linux

package elm327

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var baudBits = map[uint32]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	500000: unix.B500000,
}

// configurePort puts the tty into raw 8N1 mode at the given serial
// baud rate, with VMIN=0/VTIME so reads poll instead of blocking
// forever.
func configurePort(fd int, baud uint32) error {
	speed, ok := baudBits[baud]
	if !ok {
		return fmt.Errorf("elm327: unsupported serial baud rate %d", baud)
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("elm327: TCGETS: %w", err)
	}
	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag = unix.CREAD | unix.CLOCAL | unix.CS8 | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1 // reads return after 100 ms of silence
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("elm327: TCSETS: %w", err)
	}
	return nil
}
