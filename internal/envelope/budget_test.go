package envelope

import (
	"strings"
	"testing"
)

func TestCalculateBudgetSmallPayloadNoSplit(t *testing.T) {
	env, err := NewEvent("a", "b", "demo", 1, map[string]string{"msg": "hello"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	budget, err := CalculateBudget(env, 1000)
	if err != nil {
		t.Fatalf("CalculateBudget failed: %v", err)
	}
	if budget.NeedsSplitting {
		t.Errorf("small payload should not need splitting, got %+v", budget)
	}
}

func TestCalculateBudgetLargePayloadNeedsSplit(t *testing.T) {
	large := strings.Repeat("the quick brown fox jumps over the lazy dog ", 2000)
	env, err := NewEvent("a", "b", "demo", 1, map[string]string{"text": large})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	budget, err := CalculateBudget(env, 100)
	if err != nil {
		t.Fatalf("CalculateBudget failed: %v", err)
	}
	if !budget.NeedsSplitting {
		t.Fatalf("large payload should need splitting, got %+v", budget)
	}
	if budget.SuggestedChunks < 2 {
		t.Errorf("expected multiple suggested chunks, got %d", budget.SuggestedChunks)
	}
}

func TestCalculateBudgetZeroMaxNeverSplits(t *testing.T) {
	env, err := NewEvent("a", "b", "demo", 1, "anything")
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	budget, err := CalculateBudget(env, 0)
	if err != nil {
		t.Fatalf("CalculateBudget failed: %v", err)
	}
	if budget.NeedsSplitting {
		t.Errorf("zero max tokens should disable splitting, got %+v", budget)
	}
}
