package broker

import (
	"testing"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

func TestSubscriptionTableAddDuplicate(t *testing.T) {
	table := NewSubscriptionTable()
	sub := Subscription{Source: "a", Event: "b"}

	if !table.Add(sub) {
		t.Fatalf("first add should report new")
	}
	if table.Add(sub) {
		t.Fatalf("duplicate add should report no-op")
	}
}

func TestSubscriptionTableMatches(t *testing.T) {
	table := NewSubscriptionTable()
	table.Add(Subscription{Source: "pump", Event: envelope.IdentifierAll})

	if !table.Matches("pump", "pump.started") {
		t.Fatalf("expected wildcard-event subscription to match")
	}
	if table.Matches("valve", "valve.opened") {
		t.Fatalf("unrelated source should not match")
	}
}

func TestSubscriptionTableMatchesAllSource(t *testing.T) {
	table := NewSubscriptionTable()
	table.Add(Subscription{Source: envelope.SourceAll, Event: "system.alert"})

	if !table.Matches("anything", "system.alert") {
		t.Fatalf("expected all-source subscription to match any source")
	}
	if table.Matches("anything", "system.other") {
		t.Fatalf("event name must still match exactly")
	}
}

func TestSubscriptionTableRemove(t *testing.T) {
	table := NewSubscriptionTable()
	sub := Subscription{Source: "a", Event: "b"}
	table.Add(sub)

	if !table.Remove(sub) {
		t.Fatalf("expected remove of present subscription to succeed")
	}
	if table.Remove(sub) {
		t.Fatalf("removing twice should report false")
	}
	if table.Matches("a", "b") {
		t.Fatalf("removed subscription should no longer match")
	}
}
