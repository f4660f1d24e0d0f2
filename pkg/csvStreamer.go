package dispenser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/exp/slices"
)

func init() {
	RegisterStreamer("csv", NewCSVStreamer)
}

var (
	csvEventColumns = []string{"event", "thread", "detector", "hit", "kind", "variable", "value"}
	csvFrameColumns = []string{"frame_id", "crate", "slot", "channel", "charge", "time"}
)

// CSVStreamer writes events in long format, one observable per row, or one
// row per frame payload, to <dir>/<name>.csv.
type CSVStreamer struct {
	mu    sync.Mutex
	name  string
	path  string
	kind  StreamType
	f     *os.File
	w     *csv.Writer
	event int
	frame int
	rows  [][]string
}

func NewCSVStreamer(opts StreamerOptions) (Streamer, error) {
	name := opts.Definition.Name
	if name == "" {
		return nil, errors.New("csv output needs a name")
	}
	return &CSVStreamer{
		name: name,
		path: filepath.Join(opts.Dir, name+".csv"),
		kind: StreamType(opts.Definition.Type),
	}, nil
}

func (s *CSVStreamer) Name() string     { return s.name }
func (s *CSVStreamer) Type() StreamType { return s.kind }
func (s *CSVStreamer) Path() string     { return s.path }

func (s *CSVStreamer) OpenConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Create(s.path)
	if err != nil {
		return &ErrOpenFile{Filename: s.path, Err: err}
	}
	s.f = f
	s.w = csv.NewWriter(f)
	header := csvEventColumns
	if s.kind == FrameStream {
		header = csvFrameColumns
	}
	return s.w.Write(header)
}

func (s *CSVStreamer) CloseConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	var errs []error
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		errs = append(errs, fmt.Errorf("error flushing %s: %w", s.path, err))
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing %s: %w", s.path, err))
	}
	s.f = nil
	return errors.Join(errs...)
}

func (s *CSVStreamer) StartEvent(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = s.rows[:0]
	return nil
}

func (s *CSVStreamer) PublishEventHeader(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event = event.EventNumber
	s.rows = append(s.rows, []string{strconv.Itoa(event.EventNumber), strconv.Itoa(event.ThreadID),
		"", "", "header", "timestamp", event.Timestamp})
	return nil
}

func (s *CSVStreamer) row(detector string, hit int, kind string, variable string, value string) []string {
	return []string{strconv.Itoa(s.event), "", detector, strconv.Itoa(hit), kind, variable, value}
}

func (s *CSVStreamer) PublishEventTrueInfoData(ctx context.Context, detector string, data []*TrueInfoData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, hit := range data {
		for _, name := range sortedKeys(hit.FloatObservables) {
			s.rows = append(s.rows, s.row(detector, i, "true_info", name, strconv.FormatFloat(hit.FloatObservables[name], 'g', -1, 64)))
		}
		for _, name := range sortedKeys(hit.StringObservables) {
			s.rows = append(s.rows, s.row(detector, i, "true_info", name, hit.StringObservables[name]))
		}
	}
	return nil
}

func (s *CSVStreamer) PublishEventDigitizedData(ctx context.Context, detector string, data []*DigitizedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, hit := range data {
		ints, floats := hit.Names()
		for _, name := range ints {
			s.rows = append(s.rows, s.row(detector, i, "digitized", name, strconv.Itoa(hit.IntObservables[name])))
		}
		for _, name := range floats {
			s.rows = append(s.rows, s.row(detector, i, "digitized", name, strconv.FormatFloat(hit.FloatObservables[name], 'g', -1, 64)))
		}
	}
	return nil
}

func (s *CSVStreamer) EndEvent(ctx context.Context, event *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errors.New("csv output is not open")
	}
	return s.w.WriteAll(s.rows)
}

func (s *CSVStreamer) StartStream(ctx context.Context, frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = s.rows[:0]
	return nil
}

func (s *CSVStreamer) PublishFrameHeader(ctx context.Context, header FrameHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = header.FrameID
	return nil
}

func (s *CSVStreamer) PublishPayload(ctx context.Context, payloads []Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payloads {
		s.rows = append(s.rows, []string{strconv.Itoa(s.frame),
			strconv.Itoa(p.Crate()), strconv.Itoa(p.Slot()), strconv.Itoa(p.Channel()),
			strconv.Itoa(p.Charge()), strconv.Itoa(p.Time())})
	}
	return nil
}

func (s *CSVStreamer) EndStream(ctx context.Context, frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errors.New("csv output is not open")
	}
	return s.w.WriteAll(s.rows)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
