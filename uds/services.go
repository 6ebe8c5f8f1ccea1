package uds

import (
	"bytes"
	"fmt"
	"time"
)

// Service ids used by the built-in helpers.
const (
	sidDiagnosticSessionControl byte = 0x10
	sidECUReset                 byte = 0x11
	sidSecurityAccess           byte = 0x27
	sidRoutineControl           byte = 0x31
	sidRequestDownload          byte = 0x34
	sidTransferData             byte = 0x36
	sidRequestTransferExit      byte = 0x37
	sidTesterPresent            byte = 0x3E
	sidReadDataByIdentifier     byte = 0x22
	sidWriteDataByIdentifier    byte = 0x2E
)

// ECUReset sub-functions.
const (
	ResetHard        byte = 0x01
	ResetKeyOffOn    byte = 0x02
	ResetSoft        byte = 0x03
	suppressReplyBit byte = 0x80
)

// RoutineControl sub-functions.
const (
	RoutineStart         byte = 0x01
	RoutineStop          byte = 0x02
	RoutineRequestResult byte = 0x03
)

// DiagnosticSessionControl switches the active session. A positive
// response updates the tracked session and relocks security: every
// session change drops any previously granted access.
func (c *Client) DiagnosticSessionControl(session byte, timeout time.Duration) error {
	resp, err := c.Request([]byte{sidDiagnosticSessionControl, session}, timeout)
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[1] != session {
		return fmt.Errorf("uds: session control echo mismatch: % X", resp)
	}
	c.state.Session = session
	c.state.relock()
	return nil
}

// ECUReset requests a reset. A positive response clears the tracked
// state entirely: the ECU reboots into the default session, locked.
func (c *Client) ECUReset(resetType byte, timeout time.Duration) error {
	resp, err := c.Request([]byte{sidECUReset, resetType}, timeout)
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[1] != resetType {
		return fmt.Errorf("uds: ecu reset echo mismatch: % X", resp)
	}
	c.state.Reset()
	return nil
}

// TesterPresent keeps the non-default session alive. With suppress set
// the 0x80 sub-function is used and the call returns as soon as the
// frame is out, it must not wait for a response the ECU will not send.
func (c *Client) TesterPresent(suppress bool, timeout time.Duration) error {
	if suppress {
		return c.tp.Send([]byte{sidTesterPresent, suppressReplyBit}, timeout)
	}
	resp, err := c.Request([]byte{sidTesterPresent, 0x00}, timeout)
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[1] != 0x00 {
		return fmt.Errorf("uds: tester present echo mismatch: % X", resp)
	}
	return nil
}

// RequestSeed asks for a security seed. level must be the odd
// request-seed sub-function. An all-zero seed is the ECU's way of
// saying this level is already unlocked (vehicle-specific convention);
// the state goes straight to Unlocked and no key is sent.
func (c *Client) RequestSeed(level byte, timeout time.Duration) ([]byte, error) {
	if level%2 == 0 {
		return nil, &SequenceError{Detail: fmt.Sprintf("request-seed sub-function must be odd, got 0x%02X", level)}
	}
	resp, err := c.Request([]byte{sidSecurityAccess, level}, timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 || resp[1] != level {
		return nil, fmt.Errorf("uds: security access echo mismatch: % X", resp)
	}
	seed := append([]byte(nil), resp[2:]...)

	if len(seed) > 0 && bytes.Equal(seed, make([]byte, len(seed))) {
		c.state.Security = SecurityUnlocked
		c.state.Level = level
		c.state.Seed = nil
		return seed, nil
	}

	c.state.Security = SecuritySeedIssued
	c.state.Level = level
	c.state.Seed = seed
	return seed, nil
}

// SendKey submits a computed key for the level whose seed was issued.
// The invariant is enforced locally before anything hits the wire: a
// key without a matching seed in the current session is a sequence
// error, and unlocking one level never implies another.
func (c *Client) SendKey(level byte, key []byte, timeout time.Duration) error {
	if c.state.Security != SecuritySeedIssued || c.state.Level != level {
		return &SequenceError{Detail: fmt.Sprintf("no seed issued for level 0x%02X in the current session", level)}
	}
	req := append([]byte{sidSecurityAccess, level + 1}, key...)
	resp, err := c.Request(req, timeout)
	if err != nil {
		c.state.relock()
		return err
	}
	if len(resp) < 2 || resp[1] != level+1 {
		c.state.relock()
		return fmt.Errorf("uds: send-key echo mismatch: % X", resp)
	}
	c.state.Security = SecurityUnlocked
	c.state.Seed = nil
	return nil
}

// Unlock runs the full seed/key exchange for one security level using
// the injected seed-to-key transform. Already-unlocked levels (all-zero
// seed) return immediately without invoking the transform.
func (c *Client) Unlock(level byte, timeout time.Duration) error {
	seed, err := c.RequestSeed(level, timeout)
	if err != nil {
		return err
	}
	if c.state.Security == SecurityUnlocked {
		return nil
	}
	if c.seedKey == nil {
		return &SequenceError{Detail: "no seed-to-key transform configured"}
	}
	key, err := c.seedKey(level, seed)
	if err != nil {
		return fmt.Errorf("uds: seed-to-key transform failed: %w", err)
	}
	return c.SendKey(level, key, timeout)
}

// ReadDataByIdentifier reads one DID and returns its record value.
func (c *Client) ReadDataByIdentifier(did uint16, timeout time.Duration) ([]byte, error) {
	resp, err := c.Request([]byte{sidReadDataByIdentifier, byte(did >> 8), byte(did)}, timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 || resp[1] != byte(did>>8) || resp[2] != byte(did) {
		return nil, fmt.Errorf("uds: read DID echo mismatch: % X", resp)
	}
	return append([]byte(nil), resp[3:]...), nil
}

// WriteDataByIdentifier writes one DID. No session state is touched.
func (c *Client) WriteDataByIdentifier(did uint16, data []byte, timeout time.Duration) error {
	req := append([]byte{sidWriteDataByIdentifier, byte(did >> 8), byte(did)}, data...)
	resp, err := c.Request(req, timeout)
	if err != nil {
		return err
	}
	if len(resp) < 3 || resp[1] != byte(did>>8) || resp[2] != byte(did) {
		return fmt.Errorf("uds: write DID echo mismatch: % X", resp)
	}
	return nil
}

// RoutineControl starts, stops, or queries a routine and returns the
// routine status record.
func (c *Client) RoutineControl(controlType byte, routineID uint16, options []byte, timeout time.Duration) ([]byte, error) {
	req := append([]byte{sidRoutineControl, controlType, byte(routineID >> 8), byte(routineID)}, options...)
	resp, err := c.Request(req, timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 4 || resp[1] != controlType || resp[2] != byte(routineID>>8) || resp[3] != byte(routineID) {
		return nil, fmt.Errorf("uds: routine control echo mismatch: % X", resp)
	}
	return append([]byte(nil), resp[4:]...), nil
}

// RequestDownload announces a flash download of size bytes at address
// and returns the maximum block length the ECU accepts per
// TransferData. Addresses and sizes use the 4/4 length-format.
func (c *Client) RequestDownload(address, size uint32, timeout time.Duration) (int, error) {
	req := []byte{
		sidRequestDownload,
		0x00, // dataFormatIdentifier: no compression, no encryption
		0x44, // addressAndLengthFormatIdentifier: 4-byte address, 4-byte size
		byte(address >> 24), byte(address >> 16), byte(address >> 8), byte(address),
		byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size),
	}
	resp, err := c.Request(req, timeout)
	if err != nil {
		return 0, err
	}
	if len(resp) < 2 {
		return 0, fmt.Errorf("uds: request download response too short: % X", resp)
	}
	numBytes := int(resp[1] >> 4)
	if numBytes == 0 || len(resp) < 2+numBytes {
		return 0, fmt.Errorf("uds: malformed maxNumberOfBlockLength: % X", resp)
	}
	maxLen := 0
	for _, b := range resp[2 : 2+numBytes] {
		maxLen = maxLen<<8 | int(b)
	}
	if maxLen <= 2 {
		return 0, fmt.Errorf("uds: ECU reported unusable block length %d", maxLen)
	}
	return maxLen, nil
}

// TransferData sends one download block under the given block sequence
// counter.
func (c *Client) TransferData(blockSeq byte, data []byte, timeout time.Duration) error {
	req := append([]byte{sidTransferData, blockSeq}, data...)
	resp, err := c.Request(req, timeout)
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[1] != blockSeq {
		return fmt.Errorf("uds: transfer data block counter mismatch: expected 0x%02X, got % X", blockSeq, resp)
	}
	return nil
}

// RequestTransferExit closes a download started by RequestDownload.
func (c *Client) RequestTransferExit(timeout time.Duration) error {
	_, err := c.Request([]byte{sidRequestTransferExit}, timeout)
	return err
}
