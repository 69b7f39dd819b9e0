package redundancy

import "testing"

func TestPlanReturnsZeroForZeroLoss(t *testing.T) {
	pl := New(1e-4)
	if r := pl.Plan(0, 16); r != 0 {
		t.Errorf("Plan(0, 16) = %d, want 0", r)
	}
}

func TestPlanReturnsNonzeroForSmallGroupHighLoss(t *testing.T) {
	pl := New(1e-3)
	r := pl.Plan(0.3, 1)
	if r == 0 {
		t.Error("Plan with k=1 and high loss should return nonzero recovery")
	}
}

func TestPlanIncreasesWithLoss(t *testing.T) {
	pl := New(1e-4)
	low := pl.Plan(0.01, 32)
	high := pl.Plan(0.30, 32)
	if high < low {
		t.Errorf("recovery at high loss (%d) should be >= recovery at low loss (%d)", high, low)
	}
}

func TestPlanClampsToMaxRecovery(t *testing.T) {
	pl := New(1e-9)
	r := pl.Plan(0.9, 4)
	if r > MaxRecovery {
		t.Errorf("Plan returned %d, exceeds MaxRecovery %d", r, MaxRecovery)
	}
}

func TestPlanIsMemoizedConsistently(t *testing.T) {
	pl := New(1e-4)
	first := pl.Plan(0.05, 20)
	second := pl.Plan(0.05, 20)
	if first != second {
		t.Errorf("cached Plan result changed: %d vs %d", first, second)
	}
}
