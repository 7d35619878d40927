package client

import "testing"

func TestStateTransitionsAllowUnknownToConnecting(t *testing.T) {
	if !transitions[StateUnknown][StateConnecting] {
		t.Fatalf("expected Unknown -> Connecting to be a valid transition")
	}
}

func TestStateTransitionsRejectConnectedToConnecting(t *testing.T) {
	if transitions[StateConnected][StateConnecting] {
		t.Fatalf("Connected -> Connecting must go through Disconnected first")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnknown:       "unknown",
		StateConnecting:    "connecting",
		StateConnected:     "connected",
		StateDisconnecting: "disconnecting",
		StateDisconnected:  "disconnected",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
