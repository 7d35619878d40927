package broker

import "testing"

func TestPendingTableAddComplete(t *testing.T) {
	table := NewPendingTable()
	call := &PendingCall{
		Originator: Handle{ID: "org.mbus.client.aaaaaaaa", Generation: 1},
		Identifier: "math.add",
		Sequence:   7,
	}
	table.Add(call)

	got, ok := table.Complete("org.mbus.client.aaaaaaaa", "math.add", 7)
	if !ok {
		t.Fatalf("expected matching pending call to complete")
	}
	if got.Sequence != 7 {
		t.Fatalf("unexpected call returned: %+v", got)
	}

	if _, ok := table.Complete("org.mbus.client.aaaaaaaa", "math.add", 7); ok {
		t.Fatalf("completing the same call twice should fail")
	}
}

func TestPendingTableDisjointSequences(t *testing.T) {
	table := NewPendingTable()
	table.Add(&PendingCall{Originator: Handle{ID: "c1"}, Identifier: "x", Sequence: 1})
	table.Add(&PendingCall{Originator: Handle{ID: "c2"}, Identifier: "x", Sequence: 1})

	if _, ok := table.Complete("c1", "x", 1); !ok {
		t.Fatalf("expected c1's call to be found")
	}
	if _, ok := table.Complete("c2", "x", 1); !ok {
		t.Fatalf("expected c2's call to still be present")
	}
}

func TestPendingTableDrainAll(t *testing.T) {
	table := NewPendingTable()
	table.Add(&PendingCall{Originator: Handle{ID: "c1"}, Identifier: "x", Sequence: 1})
	table.Add(&PendingCall{Originator: Handle{ID: "c2"}, Identifier: "y", Sequence: 2})

	drained := table.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained calls, got %d", len(drained))
	}
	if len(table.DrainAll()) != 0 {
		t.Fatalf("table should be empty after draining")
	}
}

func TestPendingTableRemoveByOriginator(t *testing.T) {
	table := NewPendingTable()
	table.Add(&PendingCall{Originator: Handle{ID: "c1"}, Identifier: "x", Sequence: 1})
	table.Add(&PendingCall{Originator: Handle{ID: "c1"}, Identifier: "y", Sequence: 2})
	table.Add(&PendingCall{Originator: Handle{ID: "c2"}, Identifier: "z", Sequence: 3})

	table.RemoveByOriginator("c1")

	if _, ok := table.Complete("c1", "x", 1); ok {
		t.Fatalf("c1's calls should have been removed")
	}
	if _, ok := table.Complete("c2", "z", 3); !ok {
		t.Fatalf("c2's call should be unaffected")
	}
}
