package envelope

import (
	"encoding/json"
	"testing"
)

func TestParseValidCommand(t *testing.T) {
	raw := []byte(`{"type":"command","destination":"org.mbus.server","identifier":"command.create","sequence":1,"payload":{"identifier":""}}`)
	env, err := Parse(raw, "conn-1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if env.Type != TypeCommand {
		t.Errorf("expected type command, got %s", env.Type)
	}
	if env.Source != "conn-1" {
		t.Errorf("expected source override to apply, got %q", env.Source)
	}
	if env.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", env.Sequence)
	}
}

func TestParseDefaultsEmptyPayload(t *testing.T) {
	raw := []byte(`{"type":"command","destination":"org.mbus.server","identifier":"command.status","sequence":2}`)
	env, err := Parse(raw, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(env.Payload) != "{}" {
		t.Errorf("expected default empty object payload, got %s", env.Payload)
	}
}

func TestParseRejectsMissingType(t *testing.T) {
	raw := []byte(`{"destination":"org.mbus.server","identifier":"command.status","sequence":1}`)
	if _, err := Parse(raw, ""); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseRejectsMissingDestination(t *testing.T) {
	raw := []byte(`{"type":"command","identifier":"command.status","sequence":1}`)
	if _, err := Parse(raw, ""); err == nil {
		t.Fatal("expected error for missing destination")
	}
}

func TestParseRejectsMissingIdentifier(t *testing.T) {
	raw := []byte(`{"type":"command","destination":"org.mbus.server","sequence":1}`)
	if _, err := Parse(raw, ""); err == nil {
		t.Fatal("expected error for missing identifier")
	}
}

func TestParseRejectsSequenceOutOfRange(t *testing.T) {
	cases := []int{0, -1, 10000}
	for _, seq := range cases {
		raw := []byte(`{"type":"command","destination":"org.mbus.server","identifier":"command.status","sequence":` + itoa(seq) + `}`)
		if _, err := Parse(raw, ""); err == nil {
			t.Errorf("expected error for sequence %d", seq)
		}
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestNewResultSetsStatus(t *testing.T) {
	env, err := NewResult("org.mbus.server", "client-a", "command.subscribe", 5, 0, nil)
	if err != nil {
		t.Fatalf("NewResult failed: %v", err)
	}
	if env.Status == nil || *env.Status != 0 {
		t.Fatalf("expected status 0, got %v", env.Status)
	}
	if env.Type != TypeResult {
		t.Errorf("expected type result, got %s", env.Type)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	env, err := NewEvent("client-a", "client-b", "demo", 1, map[string]int{"n": 7})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	env.SetHeader("k", "v")
	clone := env.Clone()
	clone.SetHeader("k", "changed")
	clone.Route = append(clone.Route, "hop")

	if v, _ := env.GetHeader("k"); v != "v" {
		t.Errorf("mutating clone's headers affected original: %v", v)
	}
	if len(env.Route) != 0 {
		t.Errorf("mutating clone's route affected original: %v", env.Route)
	}
}

func TestMintClientIdentifierShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := MintClientIdentifier()
		if len(id) != len(ClientIdentifierPrefix)+8 {
			t.Fatalf("expected identifier of length %d, got %d (%s)", len(ClientIdentifierPrefix)+8, len(id), id)
		}
		if seen[id] {
			t.Fatalf("minted duplicate identifier %s", id)
		}
		seen[id] = true
	}
}

func TestNextSequenceWraps(t *testing.T) {
	if got := NextSequence(0); got != SequenceMin {
		t.Errorf("expected wrap from zero value to %d, got %d", SequenceMin, got)
	}
	if got := NextSequence(SequenceMax); got != SequenceMin {
		t.Errorf("expected wrap at max to %d, got %d", SequenceMin, got)
	}
	if got := NextSequence(5); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}
