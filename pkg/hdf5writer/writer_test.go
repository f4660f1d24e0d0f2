package hdf5writer

import (
	"context"
	"os"
	"testing"

	dispenser "github.com/gemc/dispenser_go/pkg"
)

func TestWriter_Events(t *testing.T) {
	s, err := dispenser.NewStreamer(dispenser.StreamerOptions{
		Definition:       dispenser.OutputDefinition{Format: "hdf5", Name: "events", Type: "event"},
		Dir:              t.TempDir(),
		CompressionLevel: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := s.(*Writer)

	records := make([]*dispenser.EventRecord, 0, 3)
	for i := 0; i < 3; i++ {
		record := dispenser.NewEventRecord(i, 0, "Mon, 01.02.2006 15:04:05")
		data := dispenser.NewDigitizedData()
		data.IncludeInt("hitn", 1)
		data.IncludeFloat("totEdep", 0.5)
		record.AddDigitized("flux", data)
		info := dispenser.NewTrueInfoData()
		info.IncludeFloat("avgTime", 3)
		info.IncludeString("identity", "1-1")
		record.AddTrueInfo("flux", info)
		records = append(records, record)
	}
	if report := dispenser.PublishEventRunData(context.Background(), w, records); !report.OK() {
		t.Fatalf("unexpected report %v", report)
	}
	if w.EvtCounter != 3 {
		t.Errorf("expected 3 events, got %d", w.EvtCounter)
	}
	if err := w.CloseConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info, err := os.Stat(w.Filename()); err != nil || info.Size() == 0 {
		t.Errorf("expected a non empty file, got %v", err)
	}
}

func TestWriter_Frames(t *testing.T) {
	s, err := dispenser.NewStreamer(dispenser.StreamerOptions{
		Definition: dispenser.OutputDefinition{Format: "hdf5", Name: "frames", Type: "stream"},
		Dir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := s.(*Writer)
	for id := 1; id <= 4; id++ {
		frame := dispenser.NewFrame(id, 64000)
		frame.AddPayload(dispenser.Payload{1, 2, 3, 100 * id, 5})
		if report := dispenser.PublishFrameRunData(context.Background(), w, frame); !report.OK() {
			t.Fatalf("unexpected report %v", report)
		}
	}
	if w.FrameCounter != 4 {
		t.Errorf("expected 4 frames, got %d", w.FrameCounter)
	}
	if err := w.CloseConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// closing twice is a no-op
	if err := w.CloseConnection(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
