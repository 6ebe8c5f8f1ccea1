// Package flash loads ECU firmware images and streams them into an ECU
// through the UDS download services.
package flash

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// Segment is one contiguous run of image data at an absolute address.
type Segment struct {
	Address uint32
	Data    []byte
}

// Image is a firmware image as a set of address-ordered segments.
type Image struct {
	segments []Segment
}

// LoadIntelHex parses an Intel HEX stream into an image.
func LoadIntelHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("flash: parse hex: %w", err)
	}
	img := &Image{}
	for _, seg := range mem.GetDataSegments() {
		img.segments = append(img.segments, Segment{
			Address: seg.Address,
			Data:    append([]byte(nil), seg.Data...),
		})
	}
	if len(img.segments) == 0 {
		return nil, fmt.Errorf("flash: image contains no data")
	}
	return img, nil
}

// NewBinaryImage wraps a flat binary blob to be flashed at addr.
func NewBinaryImage(addr uint32, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("flash: image contains no data")
	}
	return &Image{segments: []Segment{{Address: addr, Data: append([]byte(nil), data...)}}}, nil
}

// Segments returns the image's segments in parse order.
func (i *Image) Segments() []Segment {
	return i.segments
}

// Size is the total payload byte count over all segments.
func (i *Image) Size() int {
	n := 0
	for _, s := range i.segments {
		n += len(s.Data)
	}
	return n
}

// Blocks cuts the segment payload into transfer-sized chunks. The last
// chunk may be short.
func (s Segment) Blocks(size int) [][]byte {
	return splitBlocks(s.Data, size)
}

func splitBlocks(data []byte, size int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
