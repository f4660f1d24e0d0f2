package dispenser

import (
	"time"

	"golang.org/x/exp/slices"
)

// Reserved digitized observables needed to place a hit in a frame.
const (
	CrateID             = "crate"
	SlotID              = "slot"
	ChannelID           = "channel"
	ChargeAtElectronics = "chargeAtElectronics"
	TimeAtElectronics   = "timeAtElectronics"

	TimeAtElectronicsNotDefined = -123456
)

const TimestampLayout = "Mon, 01.02.2006 15:04:05"

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DigitizedData holds the observables a digitization routine produced for one hit.
type DigitizedData struct {
	IntObservables   map[string]int
	FloatObservables map[string]float64
}

func NewDigitizedData() *DigitizedData {
	return &DigitizedData{
		IntObservables:   make(map[string]int),
		FloatObservables: make(map[string]float64),
	}
}

func (d *DigitizedData) IncludeInt(name string, value int) {
	d.IntObservables[name] = value
}

func (d *DigitizedData) IncludeFloat(name string, value float64) {
	d.FloatObservables[name] = value
}

func (d *DigitizedData) IntObservable(name string) (int, error) {
	v, ok := d.IntObservables[name]
	if !ok {
		return 0, &ErrVariableNotFound{Variable: name}
	}
	return v, nil
}

func (d *DigitizedData) FloatObservable(name string) (float64, error) {
	v, ok := d.FloatObservables[name]
	if !ok {
		return 0, &ErrVariableNotFound{Variable: name}
	}
	return v, nil
}

// TimeAtElectronics returns the hit time at the electronics, or
// TimeAtElectronicsNotDefined when the routine didn't set one.
func (d *DigitizedData) TimeAtElectronics() int {
	v, ok := d.IntObservables[TimeAtElectronics]
	if !ok {
		return TimeAtElectronicsNotDefined
	}
	return v
}

// Payload is the streaming readout tuple [crate, slot, channel, charge, time].
type Payload [5]int

func (p Payload) Crate() int   { return p[0] }
func (p Payload) Slot() int    { return p[1] }
func (p Payload) Channel() int { return p[2] }
func (p Payload) Charge() int  { return p[3] }
func (p Payload) Time() int    { return p[4] }

var payloadKeys = [5]string{CrateID, SlotID, ChannelID, ChargeAtElectronics, TimeAtElectronics}

func (d *DigitizedData) Payload() (Payload, error) {
	var p Payload
	for i, key := range payloadKeys {
		v, ok := d.IntObservables[key]
		if !ok {
			return p, &ErrWrongPayload{Missing: key}
		}
		p[i] = v
	}
	return p, nil
}

// Names returns the sorted observable names, integers first.
func (d *DigitizedData) Names() ([]string, []string) {
	ints := make([]string, 0, len(d.IntObservables))
	for name := range d.IntObservables {
		ints = append(ints, name)
	}
	floats := make([]string, 0, len(d.FloatObservables))
	for name := range d.FloatObservables {
		floats = append(floats, name)
	}
	slices.Sort(ints)
	slices.Sort(floats)
	return ints, floats
}

type TrueInfoData struct {
	FloatObservables  map[string]float64
	StringObservables map[string]string
}

func NewTrueInfoData() *TrueInfoData {
	return &TrueInfoData{
		FloatObservables:  make(map[string]float64),
		StringObservables: make(map[string]string),
	}
}

func (t *TrueInfoData) IncludeFloat(name string, value float64) {
	t.FloatObservables[name] = value
}

func (t *TrueInfoData) IncludeString(name string, value string) {
	t.StringObservables[name] = value
}

// DetectorDatum groups the hits of one sensitive detector in one event.
type DetectorDatum struct {
	TrueInfo  []*TrueInfoData
	Digitized []*DigitizedData
}

type EventRecord struct {
	EventNumber int
	ThreadID    int
	Timestamp   string
	Detectors   map[string]*DetectorDatum
}

func NewEventRecord(eventNumber int, threadID int, timestamp string) *EventRecord {
	return &EventRecord{
		EventNumber: eventNumber,
		ThreadID:    threadID,
		Timestamp:   timestamp,
		Detectors:   make(map[string]*DetectorDatum),
	}
}

func (e *EventRecord) datum(detector string) *DetectorDatum {
	d, ok := e.Detectors[detector]
	if !ok {
		d = &DetectorDatum{}
		e.Detectors[detector] = d
	}
	return d
}

func (e *EventRecord) AddTrueInfo(detector string, data *TrueInfoData) {
	d := e.datum(detector)
	d.TrueInfo = append(d.TrueInfo, data)
}

func (e *EventRecord) AddDigitized(detector string, data *DigitizedData) {
	d := e.datum(detector)
	d.Digitized = append(d.Digitized, data)
}

// DetectorNames returns the sensitive detectors of the event in sorted order.
func (e *EventRecord) DetectorNames() []string {
	names := make([]string, 0, len(e.Detectors))
	for name := range e.Detectors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type FrameHeader struct {
	FrameID       int
	FrameDuration float64
}

type Frame struct {
	Header   FrameHeader
	Payloads []Payload
}

func NewFrame(frameID int, frameDuration float64) *Frame {
	return &Frame{Header: FrameHeader{FrameID: frameID, FrameDuration: frameDuration}}
}

func (f *Frame) ID() int {
	return f.Header.FrameID
}

func (f *Frame) AddPayload(p Payload) {
	f.Payloads = append(f.Payloads, p)
}
