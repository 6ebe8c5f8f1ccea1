//go:build !windows

package j2534

import (
	"github.com/autodiag/vcistack/transport"
)

// New is only functional on Windows, where the vendor PassThru DLLs
// live. Everywhere else the driver cannot be loaded.
func New(dllPath string) (transport.FrameTransport, error) {
	return nil, transport.NewError("LoadLibrary", transport.ErrDriverLoadFailed,
		"PassThru vendor libraries require Windows")
}
