package dispenser

import (
	"math"
	"math/rand"
	"testing"
)

func testTable(t *testing.T) *RunWeightTable {
	t.Helper()
	table, err := NewRunWeightTable([]RunWeight{{11, 0.1}, {12, 0.7}, {13, 0.2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return table
}

func TestAllocate_SumIsExact(t *testing.T) {
	table := testTable(t)
	for _, n := range []int{0, 1, 2, 7, 100, 999, 12345} {
		allocation, err := Allocate(n, table, rand.New(rand.NewSource(int64(n))))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allocation.Total() != n {
			t.Errorf("expected %d events allocated, got %d", n, allocation.Total())
		}
	}
}

func TestAllocate_ZeroEventsIsEmpty(t *testing.T) {
	source := &sequenceSource{values: []float64{0.5}}
	allocation, err := Allocate(0, testTable(t), source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allocation.Len() != 0 {
		t.Errorf("expected empty allocation, got %v", allocation.Map())
	}
	if source.draws != 0 {
		t.Errorf("expected no draws, got %d", source.draws)
	}
}

func TestAllocate_OneDrawPerEvent(t *testing.T) {
	source := &sequenceSource{values: []float64{0.05, 0.5, 0.95, 0.5}}
	allocation, err := Allocate(4, testTable(t), source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.draws != 4 {
		t.Errorf("expected 4 draws, got %d", source.draws)
	}
	expected := map[int]int{11: 1, 12: 2, 13: 1}
	for run, n := range expected {
		if allocation.Events(run) != n {
			t.Errorf("run %d: expected %d events, got %d", run, n, allocation.Events(run))
		}
	}
	runs := allocation.Runs()
	if runs[0] != 11 || runs[1] != 12 || runs[2] != 13 {
		t.Errorf("expected table order, got %v", runs)
	}
}

func TestAllocate_Negative(t *testing.T) {
	if _, err := Allocate(-1, testTable(t), rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for negative event count")
	}
}

func TestAllocate_ReproducibleWithSeed(t *testing.T) {
	table := testTable(t)
	a, _ := Allocate(1000, table, rand.New(rand.NewSource(2024)))
	b, _ := Allocate(1000, table, rand.New(rand.NewSource(2024)))
	for _, run := range table.Runs() {
		if a.Events(run) != b.Events(run) {
			t.Errorf("run %d: %d != %d with the same seed", run, a.Events(run), b.Events(run))
		}
	}
}

func TestAllocate_FollowsWeights(t *testing.T) {
	table := testTable(t)
	n := 1000
	allocation, err := Allocate(n, table, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, run := range table.Runs() {
		w, _ := table.Weight(run)
		p := w / table.TotalWeight()
		expected := p * float64(n)
		tolerance := 5 * math.Sqrt(float64(n)*p*(1-p))
		got := float64(allocation.Events(run))
		if math.Abs(got-expected) > tolerance {
			t.Errorf("run %d: expected %.0f +- %.0f events, got %.0f", run, expected, tolerance, got)
		}
	}
}

func TestSingleRunAllocation(t *testing.T) {
	allocation := SingleRunAllocation(7, 250)
	m := allocation.Map()
	if len(m) != 1 || m[7] != 250 {
		t.Errorf("expected {7: 250}, got %v", m)
	}
	if empty := SingleRunAllocation(7, 0); empty.Len() != 0 {
		t.Errorf("expected empty allocation, got %v", empty.Map())
	}
}
