package client

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRoutineTableSetGetRemove(t *testing.T) {
	table := newRoutineTable()
	table.set("math.add", func(payload json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	if _, ok := table.get("math.add"); !ok {
		t.Fatalf("expected math.add to be registered")
	}

	table.remove("math.add")
	if _, ok := table.get("math.add"); ok {
		t.Fatalf("expected math.add to be removed")
	}
}

func TestStatusForMapsErrorToNegative(t *testing.T) {
	if statusFor(nil) != 0 {
		t.Fatalf("nil error should map to status 0")
	}
	if statusFor(errors.New("boom")) >= 0 {
		t.Fatalf("non-nil error should map to a negative status")
	}
}
