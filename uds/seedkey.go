package uds

import (
	"crypto/aes"
	"fmt"

	"github.com/chmike/cmac-go"
)

// NewCMACSeedKey returns a SeedKeyFunc computing the key as
// AES-CMAC(secret, level || seed). Several ECU families derive their
// security-access key this way; for anything else, inject your own
// transform.
func NewCMACSeedKey(secret []byte) (SeedKeyFunc, error) {
	switch len(secret) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("uds: CMAC secret must be an AES key length, got %d bytes", len(secret))
	}

	return func(level byte, seed []byte) ([]byte, error) {
		cm, err := cmac.New(aes.NewCipher, secret)
		if err != nil {
			return nil, fmt.Errorf("uds: cmac init: %w", err)
		}
		cm.Write([]byte{level})
		cm.Write(seed)
		return cm.Sum(nil), nil
	}, nil
}
