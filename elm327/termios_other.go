//go:build !linux

package elm327

// Raw-mode tty setup is only wired for Linux hosts (rfcomm or USB
// serial). Other platforms get the port as the OS hands it over.
func configurePort(fd int, baud uint32) error {
	return nil
}
