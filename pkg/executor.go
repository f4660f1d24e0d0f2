package dispenser

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// RunMetadata describes the chunk of a run handed to the engine.
type RunMetadata struct {
	RunNumber            int
	Variation            string
	TotalEventsAllocated int
	EventsProcessedSoFar int
}

// SimulationEngine processes events. BeamOn returns only once every event of
// the chunk has been processed, merged and handed to the outputs.
type SimulationEngine interface {
	InitializeRun() error
	BeamOn(ctx context.Context, run RunMetadata, nEvents int) error
}

type RunState int

const (
	RunNotStarted RunState = iota
	RunConstantsLoaded
	RunDispatching
	RunDone
)

func (s RunState) String() string {
	switch s {
	case RunNotStarted:
		return "NotStarted"
	case RunConstantsLoaded:
		return "ConstantsLoaded"
	case RunDispatching:
		return "Dispatching"
	case RunDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// RunExecutor drives the engine through an allocation, one run at a time,
// in chunks of at most maxEventBuffer events.
type RunExecutor struct {
	routines       *RoutinesMap
	maxEventBuffer int
	variation      string
	currentRunno   int
	constantsReady bool

	// OnStateChange, when set, observes every run state transition.
	OnStateChange func(runNumber int, state RunState)
}

func NewRunExecutor(routines *RoutinesMap, maxEventBuffer int, variation string) (*RunExecutor, error) {
	if maxEventBuffer <= 0 {
		return nil, &ErrConfiguration{Option: "n_event_buffer", Reason: fmt.Sprintf("must be > 0, got %d", maxEventBuffer)}
	}
	if routines == nil {
		routines = NewRoutinesMapFrom(map[string]DigitizationRoutine{})
	}
	return &RunExecutor{routines: routines, maxEventBuffer: maxEventBuffer, variation: variation}, nil
}

// ChunkSizes splits n events into full buffers followed by the remainder.
func ChunkSizes(n int, maxEventBuffer int) []int {
	if n <= 0 {
		return nil
	}
	if n <= maxEventBuffer {
		return []int{n}
	}
	chunks := make([]int, 0, n/maxEventBuffer+1)
	for i := 0; i < n/maxEventBuffer; i++ {
		chunks = append(chunks, maxEventBuffer)
	}
	if remainder := n % maxEventBuffer; remainder > 0 {
		chunks = append(chunks, remainder)
	}
	return chunks
}

func (x *RunExecutor) setState(runNumber int, state RunState) {
	if x.OnStateChange != nil {
		x.OnStateChange(runNumber, state)
	}
}

// Execute runs every allocated run. Cancellation is checked between chunks.
func (x *RunExecutor) Execute(ctx context.Context, allocation *EventAllocation, engine SimulationEngine) error {
	if allocation == nil || allocation.Total() == 0 {
		logger.Info("No events to process", "executor")
		return nil
	}
	if engine == nil {
		return errors.New("no simulation engine")
	}
	if err := engine.InitializeRun(); err != nil {
		return fmt.Errorf("error initializing run: %w", err)
	}

	for _, runNumber := range allocation.Runs() {
		nevents := allocation.Events(runNumber)
		if nevents == 0 {
			if verbose() {
				logger.Info(fmt.Sprintf("Run %d has no events, skipping", runNumber), "executor")
			}
			continue
		}
		x.setState(runNumber, RunNotStarted)

		if !x.constantsReady || runNumber != x.currentRunno {
			if err := x.routines.LoadForRun(runNumber, x.variation); err != nil {
				return err
			}
			x.currentRunno = runNumber
			x.constantsReady = true
			x.setState(runNumber, RunConstantsLoaded)
		}

		logger.Info(fmt.Sprintf("Starting run %d with %s events. Event buffer is %d",
			runNumber, humanize.Comma(int64(nevents)), x.maxEventBuffer), "executor")
		x.setState(runNumber, RunDispatching)

		chunks := ChunkSizes(nevents, x.maxEventBuffer)
		totalSoFar := 0
		for i, size := range chunks {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run %d interrupted after %d events: %w", runNumber, totalSoFar, err)
			}
			if verbose() {
				message := fmt.Sprintf("Processing sub run %d out of %d with %d events. Total events so far: %d",
					i+1, len(chunks), size, totalSoFar)
				logger.Info(message, "executor")
			}
			meta := RunMetadata{
				RunNumber:            runNumber,
				Variation:            x.variation,
				TotalEventsAllocated: nevents,
				EventsProcessedSoFar: totalSoFar,
			}
			if err := engine.BeamOn(ctx, meta, size); err != nil {
				return err
			}
			chunksDispatchedTotal.Inc()
			totalSoFar += size
		}

		x.setState(runNumber, RunDone)
		logger.Info(fmt.Sprintf("Run %d done with %s events", runNumber, humanize.Comma(int64(nevents))), "executor")
	}
	return nil
}
