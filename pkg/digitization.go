package dispenser

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/slices"
)

// DigitizationRoutine turns the raw hits of one sensitive detector into
// digitized and true information observables.
type DigitizationRoutine interface {
	DefineReadoutSpecs() ReadoutSpecs
	LoadConstants(runNumber int, variation string) error
	LoadTT(runNumber int, variation string) error
	DigitizeHit(hit *Hit, hitn int) (*DigitizedData, error)
	CollectTrueInformation(hit *Hit, hitn int) *TrueInfoData
}

type RoutineFactory func(detector string, store ConstantsStore) DigitizationRoutine

var (
	routineFactoriesMu sync.RWMutex
	routineFactories   = make(map[string]RoutineFactory)
)

// RegisterRoutine makes a digitization routine available by name to the
// detectors configuration. It panics on duplicate names.
func RegisterRoutine(name string, factory RoutineFactory) {
	routineFactoriesMu.Lock()
	defer routineFactoriesMu.Unlock()
	if _, dup := routineFactories[name]; dup {
		panic(fmt.Sprintf("digitization routine %q registered twice", name))
	}
	routineFactories[name] = factory
}

func init() {
	RegisterRoutine("flux", NewFluxDigitization)
	RegisterRoutine("particle_counter", NewParticleCounterDigitization)
}

// RoutinesMap maps sensitive detector names to their routine. The map itself
// doesn't change after construction; only constant reloads mutate routines,
// and LoadForRun serializes them.
type RoutinesMap struct {
	routines map[string]DigitizationRoutine
	names    []string
	reloadMu sync.Mutex
}

// NewRoutinesMap builds the routines named in detectors (detector -> routine
// name) from the registry.
func NewRoutinesMap(detectors map[string]string, store ConstantsStore) (*RoutinesMap, error) {
	routineFactoriesMu.RLock()
	defer routineFactoriesMu.RUnlock()

	routines := make(map[string]DigitizationRoutine, len(detectors))
	for detector, name := range detectors {
		factory, ok := routineFactories[name]
		if !ok {
			return nil, &ErrRoutineNotFound{Routine: name, Detector: detector}
		}
		routines[detector] = factory(detector, store)
	}
	return NewRoutinesMapFrom(routines), nil
}

func NewRoutinesMapFrom(routines map[string]DigitizationRoutine) *RoutinesMap {
	m := &RoutinesMap{routines: routines, names: make([]string, 0, len(routines))}
	for name := range routines {
		m.names = append(m.names, name)
	}
	slices.Sort(m.names)
	return m
}

func (m *RoutinesMap) Routine(detector string) (DigitizationRoutine, error) {
	r, ok := m.routines[detector]
	if !ok {
		return nil, &ErrDetectorNotFound{Detector: detector}
	}
	return r, nil
}

// Detectors returns the sensitive detector names in sorted order.
func (m *RoutinesMap) Detectors() []string {
	return m.names
}

// LoadForRun loads the constants and translation table of every routine for
// runNumber. Only one reload runs at a time.
func (m *RoutinesMap) LoadForRun(runNumber int, variation string) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	for _, detector := range m.names {
		routine := m.routines[detector]
		if verbose() {
			logger.Info(fmt.Sprintf("Calling %s loadConstants for run %d", detector, runNumber), "digitization")
		}
		if err := routine.LoadConstants(runNumber, variation); err != nil {
			return &ErrLoadConstants{Detector: detector, Run: runNumber, Variation: variation, Err: err}
		}
		if verbose() {
			logger.Info(fmt.Sprintf("Calling %s loadTT for run %d", detector, runNumber), "digitization")
		}
		if err := routine.LoadTT(runNumber, variation); err != nil {
			return &ErrLoadTT{Detector: detector, Run: runNumber, Variation: variation, Err: err}
		}
	}
	constantsLoadsTotal.Inc()
	return nil
}

// calibratedRoutine holds the per run state shared by the built-in routines.
type calibratedRoutine struct {
	detector  string
	store     ConstantsStore
	mu        sync.RWMutex
	constants DigitizationConstants
	tt        *TranslationTable
}

func (c *calibratedRoutine) LoadConstants(runNumber int, variation string) error {
	constants, err := c.store.LoadConstants(c.detector, runNumber, variation)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.constants = constants
	c.mu.Unlock()
	return nil
}

func (c *calibratedRoutine) LoadTT(runNumber int, variation string) error {
	tt, err := c.store.LoadTranslationTable(c.detector, runNumber, variation)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tt = tt
	c.mu.Unlock()
	return nil
}

// hardware adds the electronics observables when a translation table is
// loaded. Detectors without one only produce event data.
func (c *calibratedRoutine) hardware(hit *Hit, data *DigitizedData) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tt == nil || c.tt.Len() == 0 {
		return nil
	}
	time := int(math.Round(hit.AverageTime() + c.constants.TimeOffset))
	charge := int(math.Round(hit.TotalEnergyDeposited() * c.constants.Gain))
	return ChargeAndTimeAtHardware(c.tt, c.detector, time, charge, hit, data)
}

func (c *calibratedRoutine) trueInfo(hit *Hit) *TrueInfoData {
	info := NewTrueInfoData()
	info.IncludeFloat("totalEDeposited", hit.TotalEnergyDeposited())
	info.IncludeFloat("avgTime", hit.AverageTime())
	info.IncludeFloat("E", hit.Energy)
	info.IncludeFloat("pid", float64(hit.Pid))
	info.IncludeString("identity", TTKey(hit.TTID()))
	return info
}

// FluxDigitization records the deposited energy, time and particle of every hit.
type FluxDigitization struct {
	calibratedRoutine
}

func NewFluxDigitization(detector string, store ConstantsStore) DigitizationRoutine {
	return &FluxDigitization{calibratedRoutine{detector: detector, store: store}}
}

func (f *FluxDigitization) DefineReadoutSpecs() ReadoutSpecs {
	return ReadoutSpecs{TimeWindow: 10, GridStartTime: 0}
}

func (f *FluxDigitization) DigitizeHit(hit *Hit, hitn int) (*DigitizedData, error) {
	data := NewDigitizedData()
	if len(hit.Identity) > 0 {
		identity := hit.Identity[0]
		data.IncludeInt(identity.Name, identity.Value)
	}
	data.IncludeInt("hitn", hitn)
	data.IncludeFloat("totEdep", hit.TotalEnergyDeposited())
	data.IncludeFloat("time", hit.AverageTime())
	data.IncludeInt("pid", hit.Pid)
	data.IncludeFloat("totalE", hit.Energy)
	if err := f.hardware(hit, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *FluxDigitization) CollectTrueInformation(hit *Hit, hitn int) *TrueInfoData {
	return f.trueInfo(hit)
}

// ParticleCounterDigitization only counts particles crossing the detector.
type ParticleCounterDigitization struct {
	calibratedRoutine
}

func NewParticleCounterDigitization(detector string, store ConstantsStore) DigitizationRoutine {
	return &ParticleCounterDigitization{calibratedRoutine{detector: detector, store: store}}
}

func (p *ParticleCounterDigitization) DefineReadoutSpecs() ReadoutSpecs {
	return ReadoutSpecs{TimeWindow: 10, GridStartTime: 0}
}

func (p *ParticleCounterDigitization) DigitizeHit(hit *Hit, hitn int) (*DigitizedData, error) {
	data := NewDigitizedData()
	for _, identity := range hit.Identity {
		data.IncludeInt(identity.Name, identity.Value)
	}
	data.IncludeInt("hitn", hitn)
	data.IncludeInt("pid", hit.Pid)
	data.IncludeFloat("totalE", hit.Energy)
	data.IncludeFloat("time", hit.AverageTime())
	if err := p.hardware(hit, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (p *ParticleCounterDigitization) CollectTrueInformation(hit *Hit, hitn int) *TrueInfoData {
	return p.trueInfo(hit)
}
