//go:build !windows

package elm327

import (
	"os"

	"golang.org/x/sys/unix"
)

// openPort opens the serial device without claiming it as controlling
// terminal.
func openPort(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|os.O_SYNC, 0666)
}
