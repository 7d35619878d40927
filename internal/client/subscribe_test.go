package client

import (
	"testing"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

func TestSubscriptionTableDispatchMatchesWildcard(t *testing.T) {
	table := newSubscriptionTable()
	received := make(chan *envelope.Envelope, 1)
	table.set(envelope.SourceAll, "temperature.changed", func(env *envelope.Envelope) {
		received <- env
	})

	env, _ := envelope.NewEvent("sensor-1", "me", "temperature.changed", 1, nil)
	table.dispatch(env)

	select {
	case got := <-received:
		if got.Source != "sensor-1" {
			t.Fatalf("unexpected source: %s", got.Source)
		}
	default:
		t.Fatalf("expected handler to be invoked")
	}
}

func TestSubscriptionTableDispatchNoMatch(t *testing.T) {
	table := newSubscriptionTable()
	called := false
	table.set("sensor-1", "temperature.changed", func(env *envelope.Envelope) {
		called = true
	})

	env, _ := envelope.NewEvent("sensor-2", "me", "temperature.changed", 1, nil)
	table.dispatch(env)

	if called {
		t.Fatalf("handler should not fire for a non-matching source")
	}
}

func TestSubscriptionTableRemove(t *testing.T) {
	table := newSubscriptionTable()
	called := false
	table.set("a", "b", func(env *envelope.Envelope) { called = true })
	table.remove("a", "b")

	env, _ := envelope.NewEvent("a", "me", "b", 1, nil)
	table.dispatch(env)

	if called {
		t.Fatalf("removed subscription should not fire")
	}
}
