package dispenser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

type StreamType string

const (
	EventStream StreamType = "event"
	FrameStream StreamType = "stream"
)

func ParseStreamType(s string) (StreamType, error) {
	switch StreamType(s) {
	case "", EventStream:
		return EventStream, nil
	case FrameStream:
		return FrameStream, nil
	}
	return "", fmt.Errorf("unknown output type %q, expected %q or %q", s, EventStream, FrameStream)
}

// Report maps each publish step to whether it succeeded for every record.
type Report map[string]bool

// OK is true when every step succeeded.
func (r Report) OK() bool {
	for _, ok := range r {
		if !ok {
			return false
		}
	}
	return true
}

func (r Report) set(step string, err error) {
	prev, seen := r[step]
	r[step] = err == nil && (!seen || prev)
}

type Streamer interface {
	Name() string
	Type() StreamType
	OpenConnection() error
	CloseConnection() error
}

// EventPublisher writes one event at a time, in the order of its methods.
type EventPublisher interface {
	StartEvent(ctx context.Context, event *EventRecord) error
	PublishEventHeader(ctx context.Context, event *EventRecord) error
	PublishEventTrueInfoData(ctx context.Context, detector string, data []*TrueInfoData) error
	PublishEventDigitizedData(ctx context.Context, detector string, data []*DigitizedData) error
	EndEvent(ctx context.Context, event *EventRecord) error
}

// FramePublisher writes one frame at a time, in the order of its methods.
type FramePublisher interface {
	StartStream(ctx context.Context, frame *Frame) error
	PublishFrameHeader(ctx context.Context, header FrameHeader) error
	PublishPayload(ctx context.Context, payloads []Payload) error
	EndStream(ctx context.Context, frame *Frame) error
}

type EventStreamer interface {
	Streamer
	EventPublisher
}

type FrameStreamer interface {
	Streamer
	FramePublisher
}

// StreamerOptions carry what a streamer factory needs besides the output
// definition.
type StreamerOptions struct {
	Definition       OutputDefinition
	Dir              string
	SessionID        string
	CompressionLevel int
	RedisAddr        string
}

type StreamerFactory func(opts StreamerOptions) (Streamer, error)

var (
	streamerFactoriesMu sync.RWMutex
	streamerFactories   = make(map[string]StreamerFactory)
)

// RegisterStreamer makes an output format available by name. Formats living
// in other packages register from their init function.
func RegisterStreamer(format string, factory StreamerFactory) {
	streamerFactoriesMu.Lock()
	defer streamerFactoriesMu.Unlock()
	if _, dup := streamerFactories[format]; dup {
		panic(fmt.Sprintf("streamer %q registered twice", format))
	}
	streamerFactories[format] = factory
}

func StreamerFormats() []string {
	streamerFactoriesMu.RLock()
	defer streamerFactoriesMu.RUnlock()
	formats := make([]string, 0, len(streamerFactories))
	for format := range streamerFactories {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

// NewStreamer builds and opens the streamer of an output definition.
func NewStreamer(opts StreamerOptions) (Streamer, error) {
	streamerFactoriesMu.RLock()
	factory, ok := streamerFactories[opts.Definition.Format]
	streamerFactoriesMu.RUnlock()
	if !ok {
		return nil, &ErrStreamerFactoryNotFound{Format: opts.Definition.Format}
	}

	streamType, err := ParseStreamType(opts.Definition.Type)
	if err != nil {
		return nil, err
	}
	opts.Definition.Type = string(streamType)

	s, err := factory(opts)
	if err != nil {
		return nil, &ErrCantOpenOutput{Name: opts.Definition.Name, Err: err}
	}
	switch streamType {
	case EventStream:
		if _, ok := s.(EventPublisher); !ok {
			return nil, &ErrStreamerFactoryNotFound{Format: opts.Definition.Format + " (event)"}
		}
	case FrameStream:
		if _, ok := s.(FramePublisher); !ok {
			return nil, &ErrStreamerFactoryNotFound{Format: opts.Definition.Format + " (stream)"}
		}
	}
	if err := s.OpenConnection(); err != nil {
		return nil, &ErrCantOpenOutput{Name: s.Name(), Err: errors.Join(err, s.CloseConnection())}
	}
	if verbose() {
		logger.Info(fmt.Sprintf("Opened %s output %s (%s)", opts.Definition.Format, s.Name(), streamType), "streamer")
	}
	return s, nil
}

// PublishEventRunData writes every event of a run and reports which steps failed.
func PublishEventRunData(ctx context.Context, s EventStreamer, runData []*EventRecord) Report {
	report := Report{}
	step := func(name string, err error) {
		report.set(name, err)
		if err != nil {
			publishFailuresTotal.WithLabelValues(s.Name()).Inc()
			logger.Error((&ErrPublish{Step: s.Name() + " " + name, Err: err}).Error())
		}
	}

	for _, event := range runData {
		step("startEvent", s.StartEvent(ctx, event))
		step("header", s.PublishEventHeader(ctx, event))
		for _, detector := range event.DetectorNames() {
			datum := event.Detectors[detector]
			step(detector+"__TrueInfo", s.PublishEventTrueInfoData(ctx, detector, datum.TrueInfo))
			step(detector+"__Digitized", s.PublishEventDigitizedData(ctx, detector, datum.Digitized))
		}
		step("endEvent", s.EndEvent(ctx, event))
	}
	return report
}

// PublishFrameRunData writes one flushed frame.
func PublishFrameRunData(ctx context.Context, s FrameStreamer, frame *Frame) Report {
	report := Report{}
	step := func(name string, err error) {
		report.set(name, err)
		if err != nil {
			publishFailuresTotal.WithLabelValues(s.Name()).Inc()
			logger.Error((&ErrPublish{Step: fmt.Sprintf("%s frame %d %s", s.Name(), frame.ID(), name), Err: err}).Error())
		}
	}

	step("startStream", s.StartStream(ctx, frame))
	step("frameHeader", s.PublishFrameHeader(ctx, frame.Header))
	step("payload", s.PublishPayload(ctx, frame.Payloads))
	step("endStream", s.EndStream(ctx, frame))
	return report
}
