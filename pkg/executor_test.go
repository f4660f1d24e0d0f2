package dispenser

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func allocationOf(pairs ...int) *EventAllocation {
	allocation := newEventAllocation()
	for i := 0; i+1 < len(pairs); i += 2 {
		allocation.add(pairs[i], pairs[i+1])
	}
	return allocation
}

func newCountingExecutor(t *testing.T, buffer int) (*RunExecutor, *countingRoutine) {
	t.Helper()
	routine := &countingRoutine{}
	routines := NewRoutinesMapFrom(map[string]DigitizationRoutine{"ctof": routine})
	executor, err := NewRunExecutor(routines, buffer, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return executor, routine
}

func TestChunkSizes(t *testing.T) {
	testCases := []struct {
		n, buffer int
		expected  []int
	}{
		{250, 100, []int{100, 100, 50}},
		{200, 100, []int{100, 100}},
		{50, 100, []int{50}},
		{100, 100, []int{100}},
		{3, 1, []int{1, 1, 1}},
		{0, 100, nil},
	}
	for _, tc := range testCases {
		got := ChunkSizes(tc.n, tc.buffer)
		if !reflect.DeepEqual(got, tc.expected) {
			t.Errorf("ChunkSizes(%d, %d): expected %v, got %v", tc.n, tc.buffer, tc.expected, got)
		}
	}
}

func TestNewRunExecutor_InvalidBuffer(t *testing.T) {
	_, err := NewRunExecutor(nil, 0, "default")
	if code := ExitCode(err); code != ExitConfiguration {
		t.Errorf("expected exit code %d for empty event buffer, got %d (%v)", ExitConfiguration, code, err)
	}
}

func TestExecute_Chunks(t *testing.T) {
	executor, routine := newCountingExecutor(t, 100)
	engine := &fakeEngine{}
	before := testutil.ToFloat64(chunksDispatchedTotal)

	if err := executor.Execute(context.Background(), allocationOf(5, 250), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if engine.initialized != 1 {
		t.Errorf("expected one run initialization, got %d", engine.initialized)
	}
	if len(engine.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(engine.calls))
	}
	expectedSizes := []int{100, 100, 50}
	expectedSoFar := []int{0, 100, 200}
	for i, call := range engine.calls {
		if call.nEvents != expectedSizes[i] {
			t.Errorf("call %d: expected %d events, got %d", i, expectedSizes[i], call.nEvents)
		}
		if call.meta.EventsProcessedSoFar != expectedSoFar[i] {
			t.Errorf("call %d: expected %d events so far, got %d", i, expectedSoFar[i], call.meta.EventsProcessedSoFar)
		}
		if call.meta.RunNumber != 5 || call.meta.TotalEventsAllocated != 250 || call.meta.Variation != "default" {
			t.Errorf("call %d: unexpected metadata %+v", i, call.meta)
		}
	}
	if !reflect.DeepEqual(routine.loads, []int{5}) || !reflect.DeepEqual(routine.ttLoads, []int{5}) {
		t.Errorf("expected one load for run 5, got %v and %v", routine.loads, routine.ttLoads)
	}
	if got := testutil.ToFloat64(chunksDispatchedTotal) - before; got != 3 {
		t.Errorf("expected 3 chunks counted, got %g", got)
	}
}

func TestExecute_ReloadsOnlyOnRunChange(t *testing.T) {
	executor, routine := newCountingExecutor(t, 100)
	engine := &fakeEngine{}

	if err := executor.Execute(context.Background(), allocationOf(11, 10, 12, 10), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// same run as the last one: constants are kept
	if err := executor.Execute(context.Background(), allocationOf(12, 5), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := executor.Execute(context.Background(), allocationOf(11, 5), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if expected := []int{11, 12, 11}; !reflect.DeepEqual(routine.loads, expected) {
		t.Errorf("expected loads %v, got %v", expected, routine.loads)
	}
}

func TestExecute_StateSequence(t *testing.T) {
	executor, _ := newCountingExecutor(t, 100)
	type transition struct {
		run   int
		state RunState
	}
	var transitions []transition
	executor.OnStateChange = func(run int, state RunState) {
		transitions = append(transitions, transition{run, state})
	}

	if err := executor.Execute(context.Background(), allocationOf(5, 150, 7, 0, 9, 10), &fakeEngine{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []transition{
		{5, RunNotStarted}, {5, RunConstantsLoaded}, {5, RunDispatching}, {5, RunDone},
		{9, RunNotStarted}, {9, RunConstantsLoaded}, {9, RunDispatching}, {9, RunDone},
	}
	if !reflect.DeepEqual(transitions, expected) {
		t.Errorf("expected %v, got %v", expected, transitions)
	}
}

func TestExecute_SkipsEmptyRuns(t *testing.T) {
	executor, routine := newCountingExecutor(t, 100)
	engine := &fakeEngine{}
	if err := executor.Execute(context.Background(), allocationOf(1, 0, 2, 3, 3, 0), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.calls) != 1 || engine.calls[0].meta.RunNumber != 2 {
		t.Errorf("expected a single call for run 2, got %+v", engine.calls)
	}
	if !reflect.DeepEqual(routine.loads, []int{2}) {
		t.Errorf("expected constants loaded only for run 2, got %v", routine.loads)
	}
}

func TestExecute_EmptyAllocation(t *testing.T) {
	executor, routine := newCountingExecutor(t, 100)
	engine := &fakeEngine{}
	if err := executor.Execute(context.Background(), newEventAllocation(), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.initialized != 0 || len(engine.calls) != 0 || len(routine.loads) != 0 {
		t.Errorf("expected no work, got %d initializations, %d calls, %d loads",
			engine.initialized, len(engine.calls), len(routine.loads))
	}
}

func TestExecute_LoadFailures(t *testing.T) {
	testCases := []struct {
		name     string
		routine  *countingRoutine
		expected int
	}{
		{"constants", &countingRoutine{constantErr: errors.New("no rows")}, ExitLoadConstants},
		{"translation table", &countingRoutine{ttErr: errors.New("no rows")}, ExitLoadTT},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			routines := NewRoutinesMapFrom(map[string]DigitizationRoutine{"ctof": tc.routine})
			executor, err := NewRunExecutor(routines, 10, "default")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			engine := &fakeEngine{}
			err = executor.Execute(context.Background(), allocationOf(3, 20), engine)
			if code := ExitCode(err); code != tc.expected {
				t.Errorf("expected exit code %d, got %d (%v)", tc.expected, code, err)
			}
			if len(engine.calls) != 0 {
				t.Errorf("expected no events dispatched, got %d calls", len(engine.calls))
			}
		})
	}
}

func TestExecute_EngineError(t *testing.T) {
	executor, _ := newCountingExecutor(t, 10)
	engine := &fakeEngine{err: &ErrEngine{Run: 4, Err: errors.New("worker failed")}}
	err := executor.Execute(context.Background(), allocationOf(4, 30), engine)
	if code := ExitCode(err); code != ExitEngine {
		t.Errorf("expected exit code %d, got %d", ExitEngine, code)
	}
	if len(engine.calls) != 1 {
		t.Errorf("expected execution to stop after the first chunk, got %d calls", len(engine.calls))
	}
}

func TestExecute_Cancelled(t *testing.T) {
	executor, _ := newCountingExecutor(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := &fakeEngine{}
	err := executor.Execute(ctx, allocationOf(4, 30), engine)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(engine.calls) != 0 {
		t.Errorf("expected no chunk dispatched, got %d", len(engine.calls))
	}
}

func TestRunState_String(t *testing.T) {
	if RunDispatching.String() != "Dispatching" || RunState(42).String() != "Unknown" {
		t.Error("unexpected run state names")
	}
}
