package dispenser

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// EventDispenser distributes the requested events among runs and executes
// them.
type EventDispenser struct {
	userRunno    int
	nEventBuffer int
	variation    string
	weights      *RunWeightTable
	allocation   *EventAllocation
	executor     *RunExecutor
}

// NewEventDispenser allocates config.NEvents events. Without a run weights
// file every event goes to config.RunNumber.
func NewEventDispenser(config Configuration, routines *RoutinesMap, rng UniformSource) (*EventDispenser, error) {
	executor, err := NewRunExecutor(routines, config.NEventBuffer, config.Variation)
	if err != nil {
		return nil, err
	}
	d := &EventDispenser{
		userRunno:    config.RunNumber,
		nEventBuffer: config.NEventBuffer,
		variation:    config.Variation,
		allocation:   newEventAllocation(),
		executor:     executor,
	}

	if config.NEvents == 0 {
		return d, nil
	}
	if config.RunWeights == "" {
		d.allocation = SingleRunAllocation(d.userRunno, config.NEvents)
		return d, nil
	}

	logger.Info(fmt.Sprintf("Loading run weights from %s", config.RunWeights), "dispenser")
	d.weights, err = LoadRunWeights(config.RunWeights)
	if err != nil {
		return nil, err
	}
	d.allocation, err = Allocate(config.NEvents, d.weights, rng)
	if err != nil {
		return nil, err
	}
	d.logAllocation(config.NEvents)
	return d, nil
}

func (d *EventDispenser) logAllocation(nevents int) {
	logger.Info(fmt.Sprintf("EventDispenser initialized with %s events distributed among %d runs:",
		humanize.Comma(int64(nevents)), d.weights.Len()), "dispenser")
	logger.Info(" run\t weight\t  n. events", "dispenser")
	for _, run := range d.allocation.Runs() {
		weight, _ := d.weights.Weight(run)
		logger.Info(fmt.Sprintf(" %d\t %g\t  %d", run, weight, d.allocation.Events(run)), "dispenser")
	}
}

// SetNumberOfEvents replaces the allocation with n events for the user run.
func (d *EventDispenser) SetNumberOfEvents(n int) {
	d.allocation = SingleRunAllocation(d.userRunno, n)
}

func (d *EventDispenser) TotalNumberOfEvents() int {
	return d.allocation.Total()
}

func (d *EventDispenser) RunEvents() *EventAllocation {
	return d.allocation
}

func (d *EventDispenser) Weights() *RunWeightTable {
	return d.weights
}

func (d *EventDispenser) Executor() *RunExecutor {
	return d.executor
}

func (d *EventDispenser) ProcessEvents(ctx context.Context, engine SimulationEngine) error {
	return d.executor.Execute(ctx, d.allocation, engine)
}
