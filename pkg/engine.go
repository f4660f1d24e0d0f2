package dispenser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EventGenerator produces the raw hits of one event, keyed by sensitive
// detector. It must only draw from rng.
type EventGenerator interface {
	GenerateHits(rng *rand.Rand) map[string][]*Hit
}

// UniformHitGenerator fires HitsPerEvent hits in every detector, on random
// elements of a Sectors x Elements grid, with times up to MaxTime ns.
type UniformHitGenerator struct {
	Detectors    []string
	HitsPerEvent int
	Sectors      int
	Elements     int
	MaxTime      float64
}

var generatorPids = []int{11, 22, 211, 2212}

func (g UniformHitGenerator) GenerateHits(rng *rand.Rand) map[string][]*Hit {
	hits := make(map[string][]*Hit, len(g.Detectors))
	for _, detector := range g.Detectors {
		detectorHits := make([]*Hit, 0, g.HitsPerEvent)
		for i := 0; i < g.HitsPerEvent; i++ {
			nsteps := 1 + rng.Intn(3)
			hit := &Hit{
				Identity: []Identifier{
					{Name: "sector", Value: 1 + rng.Intn(g.Sectors)},
					{Name: "paddle", Value: 1 + rng.Intn(g.Elements)},
				},
				Edeps:  make([]float64, nsteps),
				Times:  make([]float64, nsteps),
				Pid:    generatorPids[rng.Intn(len(generatorPids))],
				Energy: 1 + 10*rng.Float64(),
			}
			for s := 0; s < nsteps; s++ {
				hit.Edeps[s] = rng.Float64()
				hit.Times[s] = g.MaxTime * rng.Float64()
			}
			detectorHits = append(detectorHits, hit)
		}
		hits[detector] = detectorHits
	}
	return hits
}

// LocalEngine processes the events of a chunk on a pool of worker
// goroutines. Each worker fills its own accumulator; once all of them are
// done the accumulators are merged and handed to the run action.
type LocalEngine struct {
	routines    *RoutinesMap
	generator   EventGenerator
	action      *RunAction
	numWorkers  int
	seed        int64
	now         func() time.Time
	progress    rate.Sometimes
	initialized bool
	processed   int
}

func NewLocalEngine(routines *RoutinesMap, generator EventGenerator, action *RunAction, numWorkers int, seed int64) *LocalEngine {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &LocalEngine{
		routines:   routines,
		generator:  generator,
		action:     action,
		numWorkers: numWorkers,
		seed:       seed,
		now:        time.Now,
		progress:   rate.Sometimes{Interval: 5 * time.Second},
	}
}

func (e *LocalEngine) InitializeRun() error {
	if e.routines == nil || e.generator == nil || e.action == nil {
		return errors.New("engine needs digitization routines, an event generator and a run action")
	}
	e.initialized = true
	if verbose() {
		logger.Info(fmt.Sprintf("Engine initialized with %d workers", e.numWorkers), "engine")
	}
	return nil
}

// Processed is the number of events processed since the engine was created.
func (e *LocalEngine) Processed() int {
	return e.processed
}

func (e *LocalEngine) BeamOn(ctx context.Context, meta RunMetadata, nEvents int) error {
	if !e.initialized {
		return &ErrEngine{Run: meta.RunNumber, Err: errors.New("beamOn before run initialization")}
	}

	accumulators := make([]*PerRunAccumulator, e.numWorkers)
	workerErrors := make([]error, e.numWorkers)
	jobs := make(chan int, 100)

	var wg sync.WaitGroup
	for w := 0; w < e.numWorkers; w++ {
		accumulators[w] = NewPerRunAccumulator()
		wg.Add(1)
		go e.worker(w, meta, jobs, accumulators[w], &workerErrors[w], &wg)
	}
	for i := 0; i < nEvents; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(workerErrors...); err != nil {
		return &ErrEngine{Run: meta.RunNumber, Err: err}
	}

	global := NewPerRunAccumulator()
	for _, acc := range accumulators {
		acc.MergeInto(global)
	}
	e.processed += nEvents
	eventsProcessedTotal.Add(float64(nEvents))

	return e.action.EndOfRun(ctx, meta, nEvents, global)
}

// worker keeps draining jobs after a failure so the dispatcher never blocks.
func (e *LocalEngine) worker(id int, meta RunMetadata, jobs <-chan int, acc *PerRunAccumulator, errp *error, wg *sync.WaitGroup) {
	defer wg.Done()
	for eventNumber := range jobs {
		if *errp != nil {
			continue
		}
		record, err := e.processEvent(id, meta, eventNumber)
		if err != nil {
			*errp = err
			continue
		}
		acc.Record(record)
		e.progress.Do(func() {
			message := fmt.Sprintf("Worker %d processing run %d event %d of %d",
				id, meta.RunNumber, meta.EventsProcessedSoFar+eventNumber+1, meta.TotalEventsAllocated)
			logger.Info(message, "engine")
		})
	}
}

func (e *LocalEngine) processEvent(id int, meta RunMetadata, eventNumber int) (record *EventRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d recovered from panic on event %d: %v", id, eventNumber, r)
		}
	}()

	rng := rand.New(rand.NewSource(EventSeed(e.seed, meta.RunNumber, meta.EventsProcessedSoFar+eventNumber)))
	hits := e.generator.GenerateHits(rng)

	record = NewEventRecord(eventNumber, id, FormatTimestamp(e.now()))
	for _, detector := range sortedKeys(hits) {
		routine, err := e.routines.Routine(detector)
		if err != nil {
			return nil, err
		}
		for i, hit := range hits[detector] {
			hitn := i + 1
			record.AddTrueInfo(detector, routine.CollectTrueInformation(hit, hitn))
			digitized, err := routine.DigitizeHit(hit, hitn)
			if err != nil {
				return nil, fmt.Errorf("digitizing %s hit %d of event %d: %w", detector, hitn, eventNumber, err)
			}
			record.AddDigitized(detector, digitized)
		}
	}
	return record, nil
}

// EventSeed derives the random seed of one event from the session seed, the
// run number and the event index within the run, so the hits of an event
// don't depend on chunking or on which worker processes it.
func EventSeed(seed int64, runNumber int, runEventIndex int) int64 {
	x := uint64(seed) ^ uint64(runNumber)*0x9e3779b97f4a7c15 ^ uint64(runEventIndex)*0xbf58476d1ce4e5b9
	x ^= x >> 31
	x *= 0x94d049bb133111eb
	x ^= x >> 29
	return int64(x)
}
