package broker

import (
	"net"
	"testing"
)

func TestRegistryAddReplacesPrevious(t *testing.T) {
	r := NewRegistry()
	serverA, _ := net.Pipe()
	serverB, _ := net.Pipe()

	a := newClient("dup", r.NextGeneration(), serverA, "a")
	b := newClient("dup", r.NextGeneration(), serverB, "b")

	if previous := r.Add(a); previous != nil {
		t.Fatalf("expected no previous occupant")
	}
	previous := r.Add(b)
	if previous != a {
		t.Fatalf("expected Add to return the replaced client")
	}

	current, ok := r.Get("dup")
	if !ok || current != b {
		t.Fatalf("expected registry to now hold b")
	}
}

func TestRegistryRemoveGuardsAgainstStaleClient(t *testing.T) {
	r := NewRegistry()
	serverA, _ := net.Pipe()
	serverB, _ := net.Pipe()

	a := newClient("id", r.NextGeneration(), serverA, "a")
	b := newClient("id", r.NextGeneration(), serverB, "b")
	r.Add(a)
	r.Add(b)

	// a is no longer the registered occupant; removing it must not evict b.
	r.Remove(a)

	if _, ok := r.Get("id"); !ok {
		t.Fatalf("b should still be registered")
	}
}

func TestRegistryNextGenerationMonotonic(t *testing.T) {
	r := NewRegistry()
	g1 := r.NextGeneration()
	g2 := r.NextGeneration()
	if g2 <= g1 {
		t.Fatalf("expected generation to increase, got %d then %d", g1, g2)
	}
}
