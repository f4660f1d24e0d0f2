package dispenser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

func init() {
	RegisterStreamer("json", NewJSONStreamer)
}

type jsonDetector struct {
	TrueInfo  []map[string]any `json:"true_info"`
	Digitized []map[string]any `json:"digitized"`
}

type jsonEvent struct {
	Session     string                   `json:"session,omitempty"`
	EventNumber int                      `json:"event_number"`
	ThreadID    int                      `json:"thread_id"`
	Timestamp   string                   `json:"timestamp"`
	Detectors   map[string]*jsonDetector `json:"detectors"`
}

type jsonFrameHeader struct {
	FrameID       int     `json:"frame_id"`
	FrameDuration float64 `json:"frame_duration"`
}

type jsonFrame struct {
	Header   jsonFrameHeader `json:"header"`
	Payloads []Payload       `json:"payloads"`
}

// JSONStreamer appends one JSON document per event or per frame to
// <dir>/<name>.jsonl.
type JSONStreamer struct {
	mu      sync.Mutex
	name    string
	path    string
	session string
	kind    StreamType
	f       *os.File
	w       *bufio.Writer
	enc     *json.Encoder
	event   *jsonEvent
	frame   *jsonFrame
}

func NewJSONStreamer(opts StreamerOptions) (Streamer, error) {
	name := opts.Definition.Name
	if name == "" {
		return nil, errors.New("json output needs a name")
	}
	return &JSONStreamer{
		name:    name,
		path:    filepath.Join(opts.Dir, name+".jsonl"),
		session: opts.SessionID,
		kind:    StreamType(opts.Definition.Type),
	}, nil
}

func (s *JSONStreamer) Name() string     { return s.name }
func (s *JSONStreamer) Type() StreamType { return s.kind }
func (s *JSONStreamer) Path() string     { return s.path }

func (s *JSONStreamer) OpenConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &ErrOpenFile{Filename: s.path, Err: err}
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, 1<<20)
	s.enc = json.NewEncoder(s.w)
	return nil
}

func (s *JSONStreamer) CloseConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	var errs []error
	if err := s.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("error flushing %s: %w", s.path, err))
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing %s: %w", s.path, err))
	}
	s.f = nil
	return errors.Join(errs...)
}

func (s *JSONStreamer) StartEvent(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event = &jsonEvent{Session: s.session, Detectors: make(map[string]*jsonDetector)}
	return nil
}

func (s *JSONStreamer) PublishEventHeader(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return errors.New("event header published before start of event")
	}
	s.event.EventNumber = event.EventNumber
	s.event.ThreadID = event.ThreadID
	s.event.Timestamp = event.Timestamp
	return nil
}

func (e *jsonEvent) detector(name string) *jsonDetector {
	d, ok := e.Detectors[name]
	if !ok {
		d = &jsonDetector{TrueInfo: []map[string]any{}, Digitized: []map[string]any{}}
		e.Detectors[name] = d
	}
	return d
}

func trueInfoDocument(hit *TrueInfoData) map[string]any {
	m := make(map[string]any, len(hit.FloatObservables)+len(hit.StringObservables))
	for k, v := range hit.FloatObservables {
		m[k] = v
	}
	for k, v := range hit.StringObservables {
		m[k] = v
	}
	return m
}

func digitizedDocument(hit *DigitizedData) map[string]any {
	m := make(map[string]any, len(hit.IntObservables)+len(hit.FloatObservables))
	for k, v := range hit.IntObservables {
		m[k] = v
	}
	for k, v := range hit.FloatObservables {
		m[k] = v
	}
	return m
}

func (s *JSONStreamer) PublishEventTrueInfoData(ctx context.Context, detector string, data []*TrueInfoData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return errors.New("detector data published before start of event")
	}
	d := s.event.detector(detector)
	for _, hit := range data {
		d.TrueInfo = append(d.TrueInfo, trueInfoDocument(hit))
	}
	return nil
}

func (s *JSONStreamer) PublishEventDigitizedData(ctx context.Context, detector string, data []*DigitizedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return errors.New("detector data published before start of event")
	}
	d := s.event.detector(detector)
	for _, hit := range data {
		d.Digitized = append(d.Digitized, digitizedDocument(hit))
	}
	return nil
}

func (s *JSONStreamer) EndEvent(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return errors.New("end of event without start of event")
	}
	err := s.enc.Encode(s.event)
	s.event = nil
	return err
}

func (s *JSONStreamer) StartStream(ctx context.Context, frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = &jsonFrame{Payloads: []Payload{}}
	return nil
}

func (s *JSONStreamer) PublishFrameHeader(ctx context.Context, header FrameHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return errors.New("frame header published before start of stream")
	}
	s.frame.Header = jsonFrameHeader{FrameID: header.FrameID, FrameDuration: header.FrameDuration}
	return nil
}

func (s *JSONStreamer) PublishPayload(ctx context.Context, payloads []Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return errors.New("payload published before start of stream")
	}
	s.frame.Payloads = append(s.frame.Payloads, payloads...)
	return nil
}

func (s *JSONStreamer) EndStream(ctx context.Context, frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return errors.New("end of stream without start of stream")
	}
	err := s.enc.Encode(s.frame)
	s.frame = nil
	return err
}
