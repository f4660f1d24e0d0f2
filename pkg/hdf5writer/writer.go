// Package hdf5writer adds the "hdf5" output format. Import it for its side
// effect:
//
//	import _ "github.com/gemc/dispenser_go/pkg/hdf5writer"
package hdf5writer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	dispenser "github.com/gemc/dispenser_go/pkg"
	"github.com/jmbenlloch/go-hdf5"
)

func init() {
	dispenser.RegisterStreamer("hdf5", NewWriter)
}

// Writer stores events as rows of the Run/events, Digitized/hits and
// TrueInfo tables, or frames as rows of Frames/headers and Frames/payloads.
type Writer struct {
	mu               sync.Mutex
	name             string
	filename         string
	kind             dispenser.StreamType
	compressionLevel int

	File          *hdf5.File
	RunGroup      *hdf5.Group
	DigitGroup    *hdf5.Group
	TrueInfoGroup *hdf5.Group
	FramesGroup   *hdf5.Group

	EventTable          *hdf5.Dataset
	DigitizedTable      *hdf5.Dataset
	TrueInfoTable       *hdf5.Dataset
	TrueInfoStringTable *hdf5.Dataset
	FrameHeaderTable    *hdf5.Dataset
	PayloadTable        *hdf5.Dataset

	eventNumber int32
	event       []EventDataHDF5
	digitized   []DigitizedHDF5
	trueInfo    []TrueInfoHDF5
	trueStrings []TrueInfoStringHDF5
	frameID     int32
	header      []FrameHeaderHDF5
	payloads    []PayloadHDF5

	EvtCounter   int
	FrameCounter int
}

func NewWriter(opts dispenser.StreamerOptions) (dispenser.Streamer, error) {
	name := opts.Definition.Name
	if name == "" {
		return nil, errors.New("hdf5 output needs a name")
	}
	return &Writer{
		name:             name,
		filename:         filepath.Join(opts.Dir, name+".h5"),
		kind:             dispenser.StreamType(opts.Definition.Type),
		compressionLevel: opts.CompressionLevel,
	}, nil
}

func (w *Writer) Name() string               { return w.name }
func (w *Writer) Type() dispenser.StreamType { return w.kind }
func (w *Writer) Filename() string           { return w.filename }

func (w *Writer) OpenConnection() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hdf5.SetStringLength(STRLEN)

	var err error
	if w.File, err = openFile(w.filename); err != nil {
		return &dispenser.ErrOpenFile{Filename: w.filename, Err: err}
	}
	dispenser.GetLogger().Info(fmt.Sprintf("hdf5writer: Creating file: %s", w.filename), "hdf5writer")

	if w.kind == dispenser.FrameStream {
		return w.createFrameTables()
	}
	return w.createEventTables()
}

func (w *Writer) createEventTables() error {
	var err error
	if w.RunGroup, err = createGroup(w.File, "Run"); err != nil {
		return err
	}
	if w.DigitGroup, err = createGroup(w.File, "Digitized"); err != nil {
		return err
	}
	if w.TrueInfoGroup, err = createGroup(w.File, "TrueInfo"); err != nil {
		return err
	}
	if w.EventTable, err = createTable(w.RunGroup, "events", EventDataHDF5{}, w.compressionLevel); err != nil {
		return err
	}
	if w.DigitizedTable, err = createTable(w.DigitGroup, "hits", DigitizedHDF5{}, w.compressionLevel); err != nil {
		return err
	}
	if w.TrueInfoTable, err = createTable(w.TrueInfoGroup, "hits", TrueInfoHDF5{}, w.compressionLevel); err != nil {
		return err
	}
	w.TrueInfoStringTable, err = createTable(w.TrueInfoGroup, "strings", TrueInfoStringHDF5{}, w.compressionLevel)
	return err
}

func (w *Writer) createFrameTables() error {
	var err error
	if w.FramesGroup, err = createGroup(w.File, "Frames"); err != nil {
		return err
	}
	if w.FrameHeaderTable, err = createTable(w.FramesGroup, "headers", FrameHeaderHDF5{}, w.compressionLevel); err != nil {
		return err
	}
	w.PayloadTable, err = createTable(w.FramesGroup, "payloads", PayloadHDF5{}, w.compressionLevel)
	return err
}

func (w *Writer) StartEvent(ctx context.Context, event *dispenser.EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.eventNumber = int32(event.EventNumber)
	w.event = w.event[:0]
	w.digitized = w.digitized[:0]
	w.trueInfo = w.trueInfo[:0]
	w.trueStrings = w.trueStrings[:0]
	return nil
}

func (w *Writer) PublishEventHeader(ctx context.Context, event *dispenser.EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.event = append(w.event, EventDataHDF5{
		evt_number: int32(event.EventNumber),
		thread_id:  int32(event.ThreadID),
		timestamp:  convertToHdf5String(event.Timestamp),
	})
	return nil
}

func (w *Writer) PublishEventTrueInfoData(ctx context.Context, detector string, data []*dispenser.TrueInfoData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	det := convertToHdf5String(detector)
	for i, hit := range data {
		for variable, value := range hit.FloatObservables {
			w.trueInfo = append(w.trueInfo, TrueInfoHDF5{
				evt_number: w.eventNumber,
				detector:   det,
				hitn:       int32(i + 1),
				variable:   convertToHdf5String(variable),
				value:      value,
			})
		}
		for variable, value := range hit.StringObservables {
			w.trueStrings = append(w.trueStrings, TrueInfoStringHDF5{
				evt_number: w.eventNumber,
				detector:   det,
				hitn:       int32(i + 1),
				variable:   convertToHdf5String(variable),
				value:      convertToHdf5String(value),
			})
		}
	}
	return nil
}

func (w *Writer) PublishEventDigitizedData(ctx context.Context, detector string, data []*dispenser.DigitizedData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	det := convertToHdf5String(detector)
	for i, hit := range data {
		ints, floats := hit.Names()
		for _, variable := range ints {
			w.digitized = append(w.digitized, DigitizedHDF5{
				evt_number: w.eventNumber,
				detector:   det,
				hitn:       int32(i + 1),
				variable:   convertToHdf5String(variable),
				value:      float64(hit.IntObservables[variable]),
			})
		}
		for _, variable := range floats {
			w.digitized = append(w.digitized, DigitizedHDF5{
				evt_number: w.eventNumber,
				detector:   det,
				hitn:       int32(i + 1),
				variable:   convertToHdf5String(variable),
				value:      hit.FloatObservables[variable],
			})
		}
	}
	return nil
}

func (w *Writer) EndEvent(ctx context.Context, event *dispenser.EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.EventTable == nil {
		return errors.New("hdf5 event tables are not open")
	}
	var errs []error
	if err := writeArrayToTable(w.EventTable, &w.event); err != nil {
		errs = append(errs, fmt.Errorf("error writing event table: %w", err))
	}
	if err := writeArrayToTable(w.DigitizedTable, &w.digitized); err != nil {
		errs = append(errs, fmt.Errorf("error writing digitized table: %w", err))
	}
	if err := writeArrayToTable(w.TrueInfoTable, &w.trueInfo); err != nil {
		errs = append(errs, fmt.Errorf("error writing true info table: %w", err))
	}
	if err := writeArrayToTable(w.TrueInfoStringTable, &w.trueStrings); err != nil {
		errs = append(errs, fmt.Errorf("error writing true info strings table: %w", err))
	}
	w.EvtCounter++
	return errors.Join(errs...)
}

func (w *Writer) StartStream(ctx context.Context, frame *dispenser.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.header = w.header[:0]
	w.payloads = w.payloads[:0]
	return nil
}

func (w *Writer) PublishFrameHeader(ctx context.Context, header dispenser.FrameHeader) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frameID = int32(header.FrameID)
	w.header = append(w.header, FrameHeaderHDF5{
		frame_id:       int32(header.FrameID),
		frame_duration: header.FrameDuration,
	})
	return nil
}

func (w *Writer) PublishPayload(ctx context.Context, payloads []dispenser.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range payloads {
		w.payloads = append(w.payloads, PayloadHDF5{
			frame_id: w.frameID,
			crate:    int32(p.Crate()),
			slot:     int32(p.Slot()),
			channel:  int32(p.Channel()),
			charge:   int32(p.Charge()),
			time:     int32(p.Time()),
		})
	}
	return nil
}

func (w *Writer) EndStream(ctx context.Context, frame *dispenser.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FrameHeaderTable == nil {
		return errors.New("hdf5 frame tables are not open")
	}
	for i := range w.header {
		w.header[i].n_payloads = int32(len(w.payloads))
	}
	var errs []error
	if err := writeArrayToTable(w.FrameHeaderTable, &w.header); err != nil {
		errs = append(errs, fmt.Errorf("error writing frame headers: %w", err))
	}
	if err := writeArrayToTable(w.PayloadTable, &w.payloads); err != nil {
		errs = append(errs, fmt.Errorf("error writing payloads: %w", err))
	}
	w.FrameCounter++
	return errors.Join(errs...)
}

type closer interface {
	Close() error
}

func (w *Writer) CloseConnection() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.File == nil {
		return nil
	}
	dispenser.GetLogger().Info(fmt.Sprintf("Closing file hdf writer %s: %d events, %d frames",
		w.filename, w.EvtCounter, w.FrameCounter), "hdf5writer")

	var errs []error
	closeAll := func(what string, c closer) {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", what, err))
		}
	}
	datasets := []struct {
		what string
		d    *hdf5.Dataset
	}{
		{"event table", w.EventTable},
		{"digitized table", w.DigitizedTable},
		{"true info table", w.TrueInfoTable},
		{"true info strings table", w.TrueInfoStringTable},
		{"frame headers table", w.FrameHeaderTable},
		{"payloads table", w.PayloadTable},
	}
	for _, ds := range datasets {
		if ds.d != nil {
			closeAll(ds.what, ds.d)
		}
	}
	groups := []struct {
		what string
		g    *hdf5.Group
	}{
		{"run group", w.RunGroup},
		{"digitized group", w.DigitGroup},
		{"true info group", w.TrueInfoGroup},
		{"frames group", w.FramesGroup},
	}
	for _, gr := range groups {
		if gr.g != nil {
			closeAll(gr.what, gr.g)
		}
	}
	closeAll("file", w.File)
	w.File = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
