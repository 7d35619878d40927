// Package client implements the mbus client-side reactor: the state
// machine, connection retry loop, request/response correlation, and
// subscription/routine dispatch a peer uses to talk to a broker.
//
// Like internal/broker, this trades spec.md's single poll() loop for
// goroutine-per-connection plus channel-based coordination: one goroutine
// reads frames and dispatches callbacks, one goroutine owns the
// connection retry/backoff loop, and the caller's own goroutine drives
// outbound calls through Client's public methods. See SPEC_FULL.md's
// REDESIGN FLAGS section.
package client

import "fmt"

// State is the client reactor's connection lifecycle stage (spec.md §5).
type State int

// Recognized client states.
const (
	StateUnknown State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// transitions lists the state changes spec.md's client reactor permits.
// connect() attempts are only honored from Unknown/Disconnected;
// disconnect() is always honored except from Unknown.
var transitions = map[State]map[State]bool{
	StateUnknown:       {StateConnecting: true},
	StateConnecting:    {StateConnected: true, StateDisconnected: true},
	StateConnected:     {StateDisconnecting: true, StateDisconnected: true},
	StateDisconnecting: {StateDisconnected: true},
	StateDisconnected:  {StateConnecting: true},
}

// ErrInvalidTransition is returned by Client.setState when asked to move
// to a state not reachable from the current one.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("client: invalid state transition %s -> %s", e.From, e.To)
}
