package broker

import "testing"

func TestCommandTableRegisterUnregister(t *testing.T) {
	table := NewCommandTable()

	if !table.Register("math.add") {
		t.Fatalf("first register should succeed")
	}
	if table.Register("math.add") {
		t.Fatalf("duplicate register should fail")
	}
	if !table.Has("math.add") {
		t.Fatalf("expected math.add to be registered")
	}

	if !table.Unregister("math.add") {
		t.Fatalf("unregister of present command should succeed")
	}
	if table.Unregister("math.add") {
		t.Fatalf("unregister of absent command should fail")
	}
	if table.Has("math.add") {
		t.Fatalf("math.add should no longer be registered")
	}
}

func TestCommandTableSnapshot(t *testing.T) {
	table := NewCommandTable()
	table.Register("a")
	table.Register("b")

	snap := table.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 registered commands, got %d", len(snap))
	}
}
