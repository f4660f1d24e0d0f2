package dispenser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTempFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// sequenceSource returns the given values in order and counts the draws.
type sequenceSource struct {
	values []float64
	draws  int
}

func (s *sequenceSource) Float64() float64 {
	v := s.values[s.draws%len(s.values)]
	s.draws++
	return v
}

type beamOnCall struct {
	meta    RunMetadata
	nEvents int
}

type fakeEngine struct {
	initialized int
	calls       []beamOnCall
	err         error
}

func (f *fakeEngine) InitializeRun() error {
	f.initialized++
	return nil
}

func (f *fakeEngine) BeamOn(ctx context.Context, meta RunMetadata, nEvents int) error {
	f.calls = append(f.calls, beamOnCall{meta: meta, nEvents: nEvents})
	return f.err
}

// countingRoutine records constant loads and digitizes every hit with the
// electronics observables.
type countingRoutine struct {
	mu          sync.Mutex
	loads       []int
	ttLoads     []int
	constantErr error
	ttErr       error
}

func (r *countingRoutine) DefineReadoutSpecs() ReadoutSpecs {
	return ReadoutSpecs{TimeWindow: 10}
}

func (r *countingRoutine) LoadConstants(runNumber int, variation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, runNumber)
	return r.constantErr
}

func (r *countingRoutine) LoadTT(runNumber int, variation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttLoads = append(r.ttLoads, runNumber)
	return r.ttErr
}

func (r *countingRoutine) DigitizeHit(hit *Hit, hitn int) (*DigitizedData, error) {
	data := NewDigitizedData()
	data.IncludeInt("hitn", hitn)
	data.IncludeFloat("totEdep", hit.TotalEnergyDeposited())
	return data, nil
}

func (r *countingRoutine) CollectTrueInformation(hit *Hit, hitn int) *TrueInfoData {
	info := NewTrueInfoData()
	info.IncludeFloat("avgTime", hit.AverageTime())
	return info
}

// memoryStreamer keeps everything it is given.
type memoryStreamer struct {
	name      string
	kind      StreamType
	records   []*EventRecord
	frames    []*Frame
	failStep  string
	opened    bool
	closed    bool
	headerIDs []int
}

func (m *memoryStreamer) Name() string     { return m.name }
func (m *memoryStreamer) Type() StreamType { return m.kind }

func (m *memoryStreamer) OpenConnection() error {
	m.opened = true
	return m.fail("open")
}

func (m *memoryStreamer) CloseConnection() error {
	m.closed = true
	return nil
}

func (m *memoryStreamer) fail(step string) error {
	if m.failStep == step {
		return errors.New("injected failure")
	}
	return nil
}

func (m *memoryStreamer) StartEvent(ctx context.Context, event *EventRecord) error {
	return m.fail("startEvent")
}

func (m *memoryStreamer) PublishEventHeader(ctx context.Context, event *EventRecord) error {
	return m.fail("header")
}

func (m *memoryStreamer) PublishEventTrueInfoData(ctx context.Context, detector string, data []*TrueInfoData) error {
	return m.fail(detector + "__TrueInfo")
}

func (m *memoryStreamer) PublishEventDigitizedData(ctx context.Context, detector string, data []*DigitizedData) error {
	return m.fail(detector + "__Digitized")
}

func (m *memoryStreamer) EndEvent(ctx context.Context, event *EventRecord) error {
	m.records = append(m.records, event)
	return m.fail("endEvent")
}

func (m *memoryStreamer) StartStream(ctx context.Context, frame *Frame) error {
	return m.fail("startStream")
}

func (m *memoryStreamer) PublishFrameHeader(ctx context.Context, header FrameHeader) error {
	m.headerIDs = append(m.headerIDs, header.FrameID)
	return m.fail("frameHeader")
}

func (m *memoryStreamer) PublishPayload(ctx context.Context, payloads []Payload) error {
	return m.fail("payload")
}

func (m *memoryStreamer) EndStream(ctx context.Context, frame *Frame) error {
	m.frames = append(m.frames, frame)
	return m.fail("endStream")
}

// payloadRecord builds an event with one digitized hit per time at
// electronics. The charge carries the value given, so tests can tag payloads.
func payloadRecord(eventNumber int, charge int, taes ...int) *EventRecord {
	record := NewEventRecord(eventNumber, 0, "")
	for _, tae := range taes {
		data := NewDigitizedData()
		data.IncludeInt(CrateID, 1)
		data.IncludeInt(SlotID, 2)
		data.IncludeInt(ChannelID, 3)
		data.IncludeInt(ChargeAtElectronics, charge)
		data.IncludeInt(TimeAtElectronics, tae)
		record.AddDigitized("ctof", data)
	}
	return record
}
