package uds

import "fmt"

// Diagnostic session types (service 0x10 sub-functions).
const (
	SessionDefault     byte = 0x01
	SessionProgramming byte = 0x02
	SessionExtended    byte = 0x03
	SessionSafety      byte = 0x04
)

// SecurityStatus is the coarse lock state of the ECU as tracked from
// SecurityAccess responses.
type SecurityStatus uint8

const (
	SecurityLocked SecurityStatus = iota
	SecuritySeedIssued
	SecurityUnlocked
)

func (s SecurityStatus) String() string {
	switch s {
	case SecurityLocked:
		return "locked"
	case SecuritySeedIssued:
		return "seed-issued"
	case SecurityUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// SessionState mirrors what the ECU believes about this tester: the
// active diagnostic session and the security lock. It is mutated only by
// successful service responses and reset by session-control-to-default,
// ECU reset, or channel disconnect.
//
// The security invariant: a key may only be sent after a seed was issued
// for the same level in the current session. Unlocking one level says
// nothing about any other.
type SessionState struct {
	Session  byte
	Security SecurityStatus

	// Level is the security sub-function level the seed/unlock applies
	// to (the odd request-seed value).
	Level byte
	// Seed is retained between request-seed and send-key.
	Seed []byte
}

// NewSessionState starts in the default session, locked.
func NewSessionState() SessionState {
	return SessionState{Session: SessionDefault, Security: SecurityLocked}
}

// Reset returns the state to default/locked; used on ECU reset and on
// disconnect.
func (s *SessionState) Reset() {
	s.Session = SessionDefault
	s.relock()
}

func (s *SessionState) relock() {
	s.Security = SecurityLocked
	s.Level = 0
	s.Seed = nil
}

func (s *SessionState) String() string {
	return fmt.Sprintf("session=0x%02X security=%s level=0x%02X", s.Session, s.Security, s.Level)
}
