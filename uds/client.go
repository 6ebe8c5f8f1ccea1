// Package uds implements the ISO 14229 diagnostic session engine: it
// issues service requests over an ISO-TP channel, decodes positive and
// negative responses, and tracks the session/security state machine the
// ECU mirrors on its side.
package uds

import (
	"fmt"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "[UDS] ", log.LstdFlags|log.Lshortfile)

const (
	// responsePendingWindow re-arms the wait when the ECU answers
	// NRC 0x78 (request received, response pending).
	responsePendingWindow = 5000 * time.Millisecond
	// DefaultRequestTimeout is used by the convenience service helpers.
	DefaultRequestTimeout = 500 * time.Millisecond
)

// Transport is the ISO-TP capability the engine needs: a bounded send
// and a bounded receive. *isotp.Session satisfies it.
type Transport interface {
	Send(payload []byte, deadline time.Duration) error
	Recv(timeout time.Duration) ([]byte, error)
}

// SeedKeyFunc computes the key for a security-access seed. The
// algorithm is vehicle-specific and always injected by the caller -
// never hardcoded in the engine.
type SeedKeyFunc func(level byte, seed []byte) ([]byte, error)

// Client is one diagnostic session engine bound to one ISO-TP channel.
type Client struct {
	tp      Transport
	state   SessionState
	seedKey SeedKeyFunc
}

// NewClient builds an engine over tp. seedKey may be nil if the caller
// never uses SecurityAccess (or unlocks with SendKey directly).
func NewClient(tp Transport, seedKey SeedKeyFunc) (*Client, error) {
	if tp == nil {
		return nil, fmt.Errorf("uds: transport must be provided")
	}
	return &Client{tp: tp, state: NewSessionState(), seedKey: seedKey}, nil
}

// State returns a copy of the tracked session state.
func (c *Client) State() SessionState {
	st := c.state
	st.Seed = append([]byte(nil), c.state.Seed...)
	return st
}

// ResetState drops the engine back to default/locked. Call it after a
// channel disconnect: the ECU will have timed the session out.
func (c *Client) ResetState() {
	c.state.Reset()
}

// Request performs one full service round trip and returns the positive
// response payload (service id echo included). Negative responses come
// back as *NegativeResponseError; a silent ECU yields ErrNoResponse.
func (c *Client) Request(service []byte, timeout time.Duration) ([]byte, error) {
	if len(service) == 0 {
		return nil, fmt.Errorf("uds: empty service request")
	}
	sid := service[0]

	if err := c.tp.Send(service, timeout); err != nil {
		return nil, fmt.Errorf("uds: send failed: %w", err)
	}

	wait := timeout
	for {
		resp, err := c.tp.Recv(wait)
		if err != nil {
			return nil, fmt.Errorf("uds: receive failed: %w", err)
		}
		if resp == nil {
			return nil, ErrNoResponse
		}

		if len(resp) >= 3 && resp[0] == 0x7F {
			if resp[2] == NRCResponsePending {
				logger.Printf("response pending for SID=0x%02X, extending wait", resp[1])
				wait = responsePendingWindow
				continue
			}
			return nil, &NegativeResponseError{Service: resp[1], NRC: resp[2]}
		}

		if resp[0] != sid+0x40 {
			return nil, fmt.Errorf("uds: response SID mismatch: expected 0x%02X, got 0x%02X", sid+0x40, resp[0])
		}
		return resp, nil
	}
}
