package flash

import (
	"fmt"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "[Flash] ", log.LstdFlags|log.Lshortfile)

// Programmer is the slice of the UDS client the downloader needs.
type Programmer interface {
	RequestDownload(address, size uint32, timeout time.Duration) (int, error)
	TransferData(blockSeq byte, data []byte, timeout time.Duration) error
	RequestTransferExit(timeout time.Duration) error
}

// DefaultTransferTimeout bounds each TransferData round trip. Flash
// writes are slow; ECUs stretch them further with response-pending.
const DefaultTransferTimeout = 2 * time.Second

// Downloader streams an image into the ECU, one RequestDownload/
// TransferData.../RequestTransferExit cycle per segment. The caller is
// responsible for having the ECU in a programming session and unlocked.
type Downloader struct {
	prog    Programmer
	timeout time.Duration
}

// NewDownloader builds a downloader over an unlocked UDS client.
func NewDownloader(prog Programmer, timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	return &Downloader{prog: prog, timeout: timeout}
}

// Flash writes every segment of the image.
func (d *Downloader) Flash(img *Image) error {
	for _, seg := range img.Segments() {
		if err := d.flashSegment(seg); err != nil {
			return fmt.Errorf("flash: segment @0x%08X: %w", seg.Address, err)
		}
	}
	logger.Printf("download complete, %d bytes in %d segments", img.Size(), len(img.Segments()))
	return nil
}

func (d *Downloader) flashSegment(seg Segment) error {
	maxBlockLen, err := d.prog.RequestDownload(seg.Address, uint32(len(seg.Data)), d.timeout)
	if err != nil {
		return err
	}
	// maxNumberOfBlockLength counts the whole TransferData message, so
	// the SID and block counter bytes come off the payload budget.
	chunkSize := maxBlockLen - 2
	blocks := seg.Blocks(chunkSize)
	logger.Printf("segment @0x%08X: %d bytes in %d blocks of up to %d",
		seg.Address, len(seg.Data), len(blocks), chunkSize)

	// The block counter starts at 1 and wraps through 0x00 after 0xFF.
	seq := byte(1)
	for _, block := range blocks {
		if err := d.prog.TransferData(seq, block, d.timeout); err != nil {
			return fmt.Errorf("block 0x%02X: %w", seq, err)
		}
		seq++
	}
	return d.prog.RequestTransferExit(d.timeout)
}
