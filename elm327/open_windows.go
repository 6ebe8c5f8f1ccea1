//go:build windows

package elm327

import (
	"os"
)

// openPort opens a COM port, e.g. `\\.\COM3`.
func openPort(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0666)
}
