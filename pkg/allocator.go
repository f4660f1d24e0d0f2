package dispenser

import (
	"fmt"
)

// UniformSource draws numbers uniformly in [0,1). *rand.Rand satisfies it.
type UniformSource interface {
	Float64() float64
}

// EventAllocation holds the number of events assigned to each run, in the
// order the runs were first seen.
type EventAllocation struct {
	runs   []int
	events map[int]int
}

func newEventAllocation() *EventAllocation {
	return &EventAllocation{events: make(map[int]int)}
}

func (a *EventAllocation) add(run int, n int) {
	if _, ok := a.events[run]; !ok {
		a.runs = append(a.runs, run)
	}
	a.events[run] += n
}

// SingleRunAllocation assigns every event to one run. No random numbers are
// consumed.
func SingleRunAllocation(run int, nEvents int) *EventAllocation {
	allocation := newEventAllocation()
	if nEvents > 0 {
		allocation.add(run, nEvents)
	}
	return allocation
}

// Allocate distributes totalEvents among the runs of the table with one
// independent weighted draw per event.
func Allocate(totalEvents int, table *RunWeightTable, rng UniformSource) (*EventAllocation, error) {
	if totalEvents < 0 {
		return nil, fmt.Errorf("number of events must be >= 0, got %d", totalEvents)
	}
	allocation := newEventAllocation()
	if totalEvents == 0 {
		return allocation, nil
	}
	if table == nil {
		return nil, fmt.Errorf("no run weights table to allocate %d events", totalEvents)
	}
	for _, run := range table.Runs() {
		allocation.add(run, 0)
	}

	clamped := 0
	for i := 0; i < totalEvents; i++ {
		run, wasClamped := table.Sample(rng.Float64())
		if wasClamped {
			clamped++
		}
		allocation.events[run]++
	}
	if clamped > 0 {
		logger.Info(fmt.Sprintf("%d draws exceeded the cumulative run weight and were assigned to run %d",
			clamped, table.lastRun()), "allocator")
		samplingClampedTotal.Add(float64(clamped))
	}
	return allocation, nil
}

// Runs returns the run numbers in allocation order.
func (a *EventAllocation) Runs() []int {
	runs := make([]int, len(a.runs))
	copy(runs, a.runs)
	return runs
}

func (a *EventAllocation) Events(run int) int {
	return a.events[run]
}

func (a *EventAllocation) Total() int {
	total := 0
	for _, n := range a.events {
		total += n
	}
	return total
}

func (a *EventAllocation) Len() int {
	return len(a.runs)
}

// Map returns a copy of the allocation as a plain map.
func (a *EventAllocation) Map() map[int]int {
	m := make(map[int]int, len(a.events))
	for run, n := range a.events {
		m[run] = n
	}
	return m
}
