package elm327

import (
	"fmt"
	"strings"

	"github.com/autodiag/vcistack/canbus"
)

// Status lines the ELM327 prints instead of frame data. None of them
// carry a frame; some of them mean the bus is unhealthy.
var statusLines = map[string]bool{
	"OK":           false,
	"SEARCHING...": false,
	"NO DATA":      false,
	"STOPPED":      false,
	"CAN ERROR":    true,
	"BUS ERROR":    true,
	"BUS BUSY":     true,
	"BUFFER FULL":  true,
	"FB ERROR":     true,
	"DATA ERROR":   true,
	"?":            true,
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return len(s) > 0
}

func hexVal(s string) uint32 {
	var v uint32
	for _, c := range s {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		}
	}
	return v
}

// parseLine turns one "7E8 10 14 62 F1 90 41 42" response line into a
// frame. The bool reports whether the line carried a frame at all;
// status chatter (OK, SEARCHING...) is skipped silently, bus fault
// lines come back as errors.
func parseLine(line string) (canbus.Frame, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return canbus.Frame{}, false, nil
	}
	if bad, known := statusLines[line]; known {
		if bad {
			return canbus.Frame{}, false, fmt.Errorf("elm327: device reported %q", line)
		}
		return canbus.Frame{}, false, nil
	}
	if strings.HasPrefix(line, "ELM327") || strings.HasPrefix(line, "AT") {
		return canbus.Frame{}, false, nil
	}

	fields := strings.Fields(line)
	// With headers on (ATH1) the first token is the 11-bit (3 digit) or
	// 29-bit (8 digit) arbitration ID.
	if len(fields) < 2 || !isHex(fields[0]) || (len(fields[0]) != 3 && len(fields[0]) != 8) {
		return canbus.Frame{}, false, nil
	}
	id := hexVal(fields[0])

	data := make([]byte, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		if len(tok) != 2 || !isHex(tok) {
			return canbus.Frame{}, false, fmt.Errorf("elm327: malformed data byte %q in line %q", tok, line)
		}
		data = append(data, byte(hexVal(tok)))
	}
	f, err := canbus.New(id, data)
	if err != nil {
		return canbus.Frame{}, false, fmt.Errorf("elm327: line %q: %w", line, err)
	}
	f.Extended = len(fields[0]) == 8
	return f, true, nil
}

// parseResponse walks every line of one '>'-terminated response block.
func parseResponse(resp string) ([]canbus.Frame, error) {
	var frames []canbus.Frame
	for _, line := range strings.FieldsFunc(resp, func(r rune) bool { return r == '\r' || r == '\n' }) {
		f, ok, err := parseLine(line)
		if err != nil {
			return frames, err
		}
		if ok {
			frames = append(frames, f)
		}
	}
	return frames, nil
}

// formatPayload renders frame data the way the ELM327 wants commands:
// upper-case hex, no separators.
func formatPayload(data []byte) string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	for _, b := range data {
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0F])
	}
	return sb.String()
}
